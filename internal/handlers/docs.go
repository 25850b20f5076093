package handlers

import (
	"net/http"
)

type object = map[string]interface{}

func queryParam(name, typ, description string) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      object{"type": typ},
	}
}

// listParam is a query parameter that may repeat, e.g. ?region=Goa&region=Kerala.
func listParam(name, description string) object {
	return object{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"style":       "form",
		"explode":     true,
		"schema":      object{"type": "array", "items": object{"type": "string"}},
	}
}

func jsonResponse(description string, schema object) object {
	return object{
		"description": description,
		"content": object{
			"application/json": object{"schema": schema},
		},
	}
}

func pngResponse() object {
	return object{
		"200": object{
			"description": "PNG chart; a placeholder image when the selection is empty",
			"content": object{
				"image/png": object{"schema": object{"type": "string", "format": "binary"}},
			},
		},
	}
}

var (
	nullableNumber = object{"type": "number", "nullable": true}

	filterParams = []object{
		listParam("region", "Region name (case-insensitive); repeat to select several"),
		listParam("crop", "Crop name (case-insensitive); repeat to select several"),
		queryParam("from", "integer", "First year, inclusive"),
		queryParam("to", "integer", "Last year, inclusive"),
	}

	recordSchema = object{
		"type": "object",
		"properties": object{
			"region":            object{"type": "string"},
			"district":          object{"type": "string"},
			"year":              object{"type": "integer"},
			"season":            object{"type": "string"},
			"crop":              object{"type": "string"},
			"area_hectare":      nullableNumber,
			"production_tonnes": nullableNumber,
			"rainfall_mm":       nullableNumber,
		},
	}

	summarySchema = object{
		"type": "object",
		"properties": object{
			"region":                    object{"type": "string"},
			"average_rainfall_mm":       nullableNumber,
			"average_production_tonnes": nullableNumber,
			"records":                   object{"type": "integer"},
		},
	}

	correlationSchema = object{
		"type": "object",
		"properties": object{
			"coefficient": object{"type": "number"},
			"pairs":       object{"type": "integer"},
			"defined":     object{"type": "boolean"},
		},
	}

	errorSchema = object{
		"type": "object",
		"properties": object{
			"error":   object{"type": "string"},
			"message": object{"type": "string"},
			"code":    object{"type": "integer"},
		},
	}

	answerSchema = object{
		"type": "object",
		"properties": object{
			"question":  object{"type": "string"},
			"answer":    object{"type": "string"},
			"region":    object{"type": "string"},
			"crop":      object{"type": "string"},
			"failed":    object{"type": "boolean"},
			"audio_url": object{"type": "string"},
		},
	}
)

func withParams(extra ...object) []object {
	return append(append([]object{}, filterParams...), extra...)
}

func get(summary string, params []object, responses object) object {
	op := object{"summary": summary, "responses": responses}
	if len(params) > 0 {
		op["parameters"] = params
	}
	return object{"get": op}
}

var notLoaded = jsonResponse("Dataset not loaded", errorSchema)

// openAPIDocument describes the dashboard API in OpenAPI 3.0 form.
func openAPIDocument() object {
	charts := object{}
	for _, name := range []string{"rainfall", "production", "scatter", "yearly-rainfall", "yearly-production"} {
		charts["/charts/"+name+".png"] = get("Render the "+name+" chart", filterParams, pngResponse())
	}

	paths := object{
		"/api/regions": get("List regions", nil, object{
			"200": jsonResponse("Sorted distinct regions", object{"type": "object", "properties": object{
				"regions": object{"type": "array", "items": object{"type": "string"}},
			}}),
		}),
		"/api/crops": get("List crops", []object{listParam("region", "Limit to crops grown in any of these regions")}, object{
			"200": jsonResponse("Sorted distinct crops", object{"type": "object", "properties": object{
				"regions": object{"type": "array", "items": object{"type": "string"}},
				"crops":  object{"type": "array", "items": object{"type": "string"}},
			}}),
		}),
		"/api/records": get("List merged records", withParams(
			queryParam("page", "integer", "Page number (default: 1)"),
			queryParam("limit", "integer", "Records per page (default: 100, max: 1000)"),
		), object{
			"200": jsonResponse("One page of records", object{"type": "object", "properties": object{
				"data":        object{"type": "array", "items": recordSchema},
				"total":       object{"type": "integer"},
				"page":        object{"type": "integer"},
				"limit":       object{"type": "integer"},
				"total_pages": object{"type": "integer"},
			}}),
			"400": jsonResponse("Invalid filter or page out of range", errorSchema),
			"503": notLoaded,
		}),
		"/api/insights": get("Overview of the selected regions and crops", filterParams, object{
			"200": jsonResponse("Head records, correlation and averages", object{"type": "object", "properties": object{
				"regions":     object{"type": "array", "items": object{"type": "string"}},
				"crops":       object{"type": "array", "items": object{"type": "string"}},
				"records":     object{"type": "integer"},
				"head":        object{"type": "array", "items": recordSchema},
				"correlation": correlationSchema,
				"summary":     summarySchema,
				"wettest":     summarySchema,
			}}),
			"400": jsonResponse("Invalid filter", errorSchema),
			"503": notLoaded,
		}),
		"/api/yearly": get("Per region and year aggregates", filterParams, object{
			"200": jsonResponse("Mean rainfall and total production", object{"type": "object", "properties": object{
				"data": object{"type": "array", "items": object{"type": "object", "properties": object{
					"region":                  object{"type": "string"},
					"year":                    object{"type": "integer"},
					"mean_rainfall_mm":        nullableNumber,
					"total_production_tonnes": object{"type": "number"},
				}}},
			}}),
			"503": notLoaded,
		}),
		"/api/trend": get("Recent production trend", []object{
			queryParam("region", "string", "Region (required)"),
			queryParam("crop", "string", "Crop (required)"),
		}, object{
			"200": jsonResponse("Per-year totals, mean and percent change", object{"type": "object", "properties": object{
				"region":         object{"type": "string"},
				"crop":           object{"type": "string"},
				"years":          object{"type": "array", "items": object{"type": "integer"}},
				"totals":         object{"type": "array", "items": object{"type": "number"}},
				"mean":           object{"type": "number"},
				"percent_change": object{"type": "number"},
				"change_defined": object{"type": "boolean"},
			}}),
			"400": jsonResponse("Missing region or crop", errorSchema),
			"404": jsonResponse("No production data", errorSchema),
		}),
		"/api/summary": get("Per-region averages", []object{queryParam("region", "string", "Return this region only")}, object{
			"200": jsonResponse("Region summaries and the wettest region, or one summary with ?region=", object{"type": "object", "properties": object{
				"regions": object{"type": "array", "items": summarySchema},
				"wettest": summarySchema,
			}}),
			"404": jsonResponse("Unknown region", errorSchema),
			"503": notLoaded,
		}),
		"/api/ask": object{
			"post": object{
				"summary": "Ask a question",
				"requestBody": object{
					"required": true,
					"content": object{"application/json": object{"schema": object{"type": "object", "properties": object{
						"question":        object{"type": "string"},
						"include_sources": object{"type": "boolean"},
					}}}},
				},
				"responses": object{
					"200": jsonResponse("Answer text; model failures are reported inside the answer", answerSchema),
					"400": jsonResponse("Invalid body", errorSchema),
				},
			},
		},
		"/api/voice/ask": object{
			"post": object{
				"summary": "Ask a question by voice",
				"requestBody": object{
					"required": true,
					"content": object{"multipart/form-data": object{"schema": object{"type": "object", "properties": object{
						"audio":           object{"type": "string", "format": "binary"},
						"include_sources": object{"type": "string"},
					}}}},
				},
				"responses": object{
					"200": jsonResponse("Transcribed question and answer", answerSchema),
					"501": jsonResponse("Voice input not available", errorSchema),
					"502": jsonResponse("Audio could not be transcribed", errorSchema),
					"504": jsonResponse("Transcription timed out", errorSchema),
				},
			},
		},
		"/health": get("Health check", nil, object{
			"200": jsonResponse("Service status and dataset state", object{"type": "object", "properties": object{
				"status":  object{"type": "string"},
				"dataset":   object{"type": "boolean"},
				"records":   object{"type": "integer"},
				"source":    object{"type": "string"},
				"loaded_at": object{"type": "string", "format": "date-time"},
			}}),
		}),
		"/metrics": get("Prometheus metrics", nil, object{
			"200": object{
				"description": "Prometheus metrics in text format",
				"content":     object{"text/plain": object{"schema": object{"type": "string"}}},
			},
		}),
	}
	for path, item := range charts {
		paths[path] = item
	}

	return object{
		"openapi": "3.0.0",
		"info": object{
			"title":       "Agricultural Insights API",
			"description": "Merged rainfall and crop production data, charts and question answering",
			"version":     "1.0.0",
		},
		"servers": []object{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": paths,
	}
}

// OpenAPIDocument serves the OpenAPI description of the API
func OpenAPIDocument(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, openAPIDocument(), http.StatusOK)
}
