package warehouse

import (
	"cloud.google.com/go/bigquery"

	"github.com/pithecene-io/stratum/types"
)

// gpsSchema is the fixed GPS table schema. Autodetect stays off; staged
// records are projected to exactly these fields before upload.
var gpsSchema = bigquery.Schema{
	{Name: "deviceId", Type: bigquery.StringFieldType, Required: true},
	{Name: "lat", Type: bigquery.FloatFieldType, Required: true},
	{Name: "lng", Type: bigquery.FloatFieldType, Required: true},
	{Name: "timestamp", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "processed_at", Type: bigquery.TimestampFieldType},
	{Name: "processing_id", Type: bigquery.StringFieldType},
}

// mobileSchema is the fixed mobile table schema.
var mobileSchema = bigquery.Schema{
	{Name: "userId", Type: bigquery.StringFieldType, Required: true},
	{Name: "name", Type: bigquery.StringFieldType, Required: true},
	{Name: "email", Type: bigquery.StringFieldType, Required: true},
	{Name: "lat", Type: bigquery.FloatFieldType, Required: true},
	{Name: "lng", Type: bigquery.FloatFieldType, Required: true},
	{Name: "timestamp", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "processed_at", Type: bigquery.TimestampFieldType},
	{Name: "processing_id", Type: bigquery.StringFieldType},
}

// schemaFor returns the fixed schema for a record kind.
func schemaFor(kind types.Kind) bigquery.Schema {
	if kind == types.KindMobile {
		return mobileSchema
	}
	return gpsSchema
}
