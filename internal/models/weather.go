package models

import "encoding/json"

// WeatherQuery is the decoded body of POST /api/weather.
// RequesterName is echoed back verbatim; nil when the caller omitted it.
type WeatherQuery struct {
	Token         string
	Location      string
	Date          string
	RequesterName json.RawMessage
}

// DayWeather holds one day's metrics from the provider's timeline.
// A nil field was absent upstream and is serialized as null.
type DayWeather struct {
	TempC      *float64 `json:"temp_c"`
	WindKPH    *float64 `json:"wind_kph"`
	PressureMB *float64 `json:"pressure_mb"`
	Humidity   *float64 `json:"humidity"`
}

// ResponsePayload is the body returned to relay callers.
type ResponsePayload struct {
	RequesterName        json.RawMessage `json:"requester_name"`
	Timestamp            string          `json:"timestamp"`
	Location             string          `json:"location"`
	Date                 string          `json:"date"`
	Weather              DayWeather      `json:"weather"`
	AIClothingSuggestion string          `json:"ai_clothing_suggestion"`
}
