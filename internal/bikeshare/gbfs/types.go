package gbfs

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// stationID accepts both string and numeric station ids.
type stationID string

func (s *stationID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = stationID(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = stationID(n.String())
	return nil
}

// flag accepts GBFS v1 integers (0/1) and v2 booleans.
type flag bool

func (f *flag) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true":
		*f = true
	case "false", "null":
		*f = false
	default:
		n, err := strconv.Atoi(string(b))
		if err != nil {
			return err
		}
		*f = n != 0
	}
	return nil
}

type stationStatusResponse struct {
	LastUpdated int64 `json:"last_updated"`
	TTL         int   `json:"ttl"`
	Data        struct {
		Stations []stationStatus `json:"stations"`
	} `json:"data"`
}

type stationStatus struct {
	StationID          stationID `json:"station_id"`
	NumBikesAvailable  int       `json:"num_bikes_available"`
	NumEBikesAvailable int       `json:"num_ebikes_available"`
	NumDocksAvailable  int       `json:"num_docks_available"`
	IsRenting          flag      `json:"is_renting"`
	IsReturning        flag      `json:"is_returning"`
	LastReported       int64     `json:"last_reported"`
}

type stationInformationResponse struct {
	LastUpdated int64 `json:"last_updated"`
	Data        struct {
		Stations []stationInformation `json:"stations"`
	} `json:"data"`
}

type stationInformation struct {
	StationID stationID `json:"station_id"`
	Name      string    `json:"name"`
	Capacity  int       `json:"capacity"`
}
