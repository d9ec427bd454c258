package repository

import (
	"github.com/paulmach/orb"

	"ShopMap-App/internal/domain/model"
)

// GeoPoint PostGIS POINT 型の JSON 表現
type GeoPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // [longitude, latitude]
}

// LatLngToGeoPoint model.LatLng を PostGIS POINT 形式に変換
func LatLngToGeoPoint(latLng model.LatLng) *GeoPoint {
	point := orb.Point{latLng.Lng, latLng.Lat}

	return &GeoPoint{
		Type:        "Point",
		Coordinates: []float64{point.Lon(), point.Lat()},
	}
}

// GeoPointToLatLng PostGIS POINT を model.LatLng に変換
func GeoPointToLatLng(geoPoint *GeoPoint) model.LatLng {
	if geoPoint == nil || len(geoPoint.Coordinates) < 2 {
		return model.LatLng{}
	}

	point := orb.Point{geoPoint.Coordinates[0], geoPoint.Coordinates[1]}

	return model.LatLng{
		Lat: point.Lat(),
		Lng: point.Lon(),
	}
}
