package handlers

import (
	"encoding/json"
	"html/template"
	"net/http"
)

func queryParam(name, description, typ string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      map[string]string{"type": typ},
	}
}

func jsonBody(description string, properties map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"required":    false,
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"type":       "object",
					"properties": properties,
				},
			},
		},
	}
}

func jsonResponse(description, ref string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]string{"$ref": "#/components/schemas/" + ref},
			},
		},
	}
}

var errorResponses = map[string]interface{}{
	"400": jsonResponse("Invalid input or feature schema", "Error"),
	"422": jsonResponse("Holiday calendar does not cover the date", "Error"),
	"502": jsonResponse("Prediction model failed", "Error"),
	"504": jsonResponse("Request timed out", "Error"),
}

func withErrors(ok map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"200": ok}
	for k, v := range errorResponses {
		out[k] = v
	}
	return out
}

var baselineProperties = map[string]interface{}{
	"total_outpatient": map[string]interface{}{"type": "integer", "default": DefaultTotalOutpatient},
	"intro_outpatient": map[string]interface{}{"type": "integer", "default": DefaultIntroOutpatient},
	"ER":               map[string]interface{}{"type": "integer", "default": DefaultERCount},
	"bed_count":        map[string]interface{}{"type": "integer", "default": DefaultBedCount},
}

func withBaseline(extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(baselineProperties)+len(extra))
	for k, v := range baselineProperties {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var dateSchema = map[string]string{"type": "string", "format": "date"}

// OpenAPISpec returns the OpenAPI 3.0 specification for the admissions forecast API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	featureProps := map[string]interface{}{}
	for _, name := range []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun", "public_holiday", "public_holiday_previous_day", "total_outpatient", "intro_outpatient", "ER", "bed_count"} {
		featureProps[name] = map[string]string{"type": "number"}
	}

	spec := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Admissions Forecast API",
			"description": "Daily hospital admission forecasts from calendar features and operational counters",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/predict": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Forecast one day",
					"description": "Classify the date, adjust the baseline and predict admissions. Date defaults to today.",
					"requestBody": jsonBody("Date and operational baseline", withBaseline(map[string]interface{}{"date": dateSchema})),
					"responses":   withErrors(jsonResponse("Forecast point", "Point")),
				},
			},
			"/api/predict_week": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Forecast consecutive days",
					"description": "Roll the pipeline over num_days days starting at start_date. Add ?format=csv for CSV.",
					"requestBody": jsonBody("Start date, length and baseline", withBaseline(map[string]interface{}{
						"start_date": dateSchema,
						"num_days":   map[string]interface{}{"type": "integer", "default": DefaultNumDays, "minimum": 1},
					})),
					"responses": withErrors(jsonResponse("Forecast series", "Series")),
				},
			},
			"/api/forecast/month": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Forecast a calendar month",
					"description": "Roll the pipeline over every day of the month. Add ?format=csv for CSV.",
					"requestBody": jsonBody("Year, month and baseline", withBaseline(map[string]interface{}{
						"year":  map[string]string{"type": "integer"},
						"month": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 12},
					})),
					"responses": withErrors(jsonResponse("Forecast series", "Series")),
				},
			},
			"/api/forecast/chart": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Forecast chart",
					"description": "HTML bar chart coloured by busyness level. Pass year and month for a monthly chart.",
					"parameters": []map[string]interface{}{
						queryParam("start_date", "First day (YYYY-MM-DD)", "string"),
						queryParam("num_days", "Number of days", "integer"),
						queryParam("year", "Calendar year", "integer"),
						queryParam("month", "Calendar month", "integer"),
						queryParam("total_outpatient", "Baseline outpatients", "integer"),
						queryParam("intro_outpatient", "Baseline referrals", "integer"),
						queryParam("ER", "Baseline ER patients", "integer"),
						queryParam("bed_count", "Bed count", "integer"),
					},
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Chart page",
							"content":     map[string]interface{}{"text/html": map[string]interface{}{"schema": map[string]string{"type": "string"}}},
						},
					},
				},
			},
			"/api/predict_raw": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Predict from a raw feature record",
					"description": "All thirteen features are required and must be numeric",
					"requestBody": jsonBody("Feature record", featureProps),
					"responses":   withErrors(jsonResponse("Prediction with input features", "RawPrediction")),
				},
			},
			"/api/scenarios": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":   "List predefined scenarios",
					"responses": map[string]interface{}{"200": jsonResponse("Scenarios", "Scenarios")},
				},
			},
			"/api/scenarios/compare": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Compare scenarios",
					"description": "Predict each scenario; an empty list compares the predefined scenarios",
					"requestBody": jsonBody("Scenarios", map[string]interface{}{
						"date":      dateSchema,
						"scenarios": map[string]interface{}{"type": "array", "items": map[string]string{"type": "object"}},
					}),
					"responses": withErrors(jsonResponse("Scenario predictions", "ScenarioComparison")),
				},
			},
			"/api/history": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prediction history",
					"description": "Logged predictions, newest first. Requires the database.",
					"parameters": []map[string]interface{}{
						queryParam("kind", "Request kind: single, days or month", "string"),
						queryParam("start_date", "Earliest prediction date (YYYY-MM-DD)", "string"),
						queryParam("end_date", "Latest prediction date (YYYY-MM-DD)", "string"),
						queryParam("page", "Page number (default: 1)", "integer"),
						queryParam("limit", "Records per page (default: 100)", "integer"),
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Paginated prediction logs", "Paginated"),
						"503": jsonResponse("Database disabled", "Error"),
					},
				},
			},
			"/api/history/{id}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "One logged prediction",
					"parameters": []map[string]interface{}{
						{
							"name":     "id",
							"in":       "path",
							"required": true,
							"schema":   map[string]string{"type": "integer"},
						},
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Prediction log entry", "PredictionLog"),
						"404": jsonResponse("No entry with this id", "Error"),
						"503": jsonResponse("Database disabled", "Error"),
					},
				},
			},
			"/api/history/summary": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Logged predictions per weekday",
					"parameters": []map[string]interface{}{
						queryParam("start_date", "Earliest prediction date (YYYY-MM-DD)", "string"),
						queryParam("end_date", "Latest prediction date (YYYY-MM-DD)", "string"),
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Weekday summary", "WeekdaySummary"),
						"503": jsonResponse("Database disabled", "Error"),
					},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Health check",
					"description": "Reports the model backend and the state of optional stores",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{"description": "API is healthy"},
						"503": map[string]interface{}{"description": "A configured store is unreachable"},
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"Error": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"error":   map[string]string{"type": "string"},
						"message": map[string]string{"type": "string"},
						"code":    map[string]string{"type": "integer"},
						"field":   map[string]string{"type": "string"},
						"date":    dateSchema,
					},
				},
				"Point": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"date":                        dateSchema,
						"day":                         map[string]string{"type": "string"},
						"weekday_index":               map[string]string{"type": "integer"},
						"season":                      map[string]string{"type": "string"},
						"public_holiday":              map[string]string{"type": "boolean"},
						"public_holiday_previous_day": map[string]string{"type": "boolean"},
						"holiday_name":                map[string]string{"type": "string"},
						"features":                    map[string]interface{}{"type": "object", "properties": featureProps},
						"prediction":                  map[string]string{"type": "number"},
						"busyness_level":              map[string]interface{}{"type": "string", "enum": []string{"low", "somewhat-low", "somewhat-high", "high"}},
					},
				},
				"Series": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"mode":        map[string]interface{}{"type": "string", "enum": []string{"days", "month"}},
						"start_date":  dateSchema,
						"end_date":    dateSchema,
						"num_days":    map[string]string{"type": "integer"},
						"baseline":    map[string]string{"type": "object"},
						"predictions": map[string]interface{}{"type": "array", "items": map[string]string{"$ref": "#/components/schemas/Point"}},
						"summary":     map[string]string{"type": "object"},
					},
				},
				"RawPrediction": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"prediction":     map[string]string{"type": "number"},
						"input_features": map[string]interface{}{"type": "object", "properties": featureProps},
					},
				},
				"Scenarios":          map[string]string{"type": "object"},
				"ScenarioComparison": map[string]string{"type": "object"},
				"Paginated":          map[string]string{"type": "object"},
				"WeekdaySummary":     map[string]string{"type": "object"},
				"PredictionLog":      map[string]string{"type": "object"},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}

var swaggerTemplate = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Admissions Forecast API Documentation</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "{{.SpecURL}}",
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis]
            });
        };
    </script>
</body>
</html>`))

// SwaggerUI serves the Swagger UI HTML page
func SwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	swaggerTemplate.Execute(w, struct{ SpecURL string }{"/api/docs/openapi.json"})
}
