package forecast

import "admission-forecast/internal/models"

// Build lays adjusted features out in model column order and validates them.
// This is the last check before the oracle sees the record.
func Build(adjusted models.AdjustedFeatures) (models.FeatureRecord, error) {
	var r models.FeatureRecord

	for i, v := range adjusted.OneHot.Values() {
		r[models.FeatureMon+i] = float64(v)
	}
	r[models.FeaturePublicHoliday] = float64(adjusted.PublicHoliday)
	r[models.FeaturePublicHolidayPreviousDay] = float64(adjusted.PublicHolidayPreviousDay)
	r[models.FeatureTotalOutpatient] = adjusted.TotalOutpatient
	r[models.FeatureIntroOutpatient] = adjusted.IntroOutpatient
	r[models.FeatureER] = adjusted.ER
	r[models.FeatureBedCount] = adjusted.BedCount

	if err := r.Validate(); err != nil {
		return models.FeatureRecord{}, err
	}
	return r, nil
}
