package service

import (
	"time"

	"github.com/son-tlv/tavlui-hw1/internal/models"
)

// timestampLayout is ISO-8601 UTC at second precision with a literal Z.
const timestampLayout = "2006-01-02T15:04:05Z"

// Assemble builds the response payload. It has no failure modes.
func Assemble(q models.WeatherQuery, day models.DayWeather, suggestion string, now time.Time) models.ResponsePayload {
	return models.ResponsePayload{
		RequesterName:        q.RequesterName,
		Timestamp:            now.UTC().Format(timestampLayout),
		Location:             q.Location,
		Date:                 q.Date,
		Weather:              day,
		AIClothingSuggestion: suggestion,
	}
}
