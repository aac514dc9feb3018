package aranet

import "github.com/google/uuid"

// GATT UUIDs exposed by Aranet sensors. The vendor ("SAF Tehnika") service
// carries the sensor characteristics; Battery is the standard service.
// GAP, Device Information and the Nordic DFU service also appear in the
// device tree but carry nothing this program reads.
var (
	serviceBattery    = uuid.MustParse("0000180f-0000-1000-8000-00805f9b34fb") // v1.2.0 and later
	charBatteryLevel  = uuid.MustParse("00002a19-0000-1000-8000-00805f9b34fb")
	serviceSAFTehnika = uuid.MustParse("0000fce0-0000-1000-8000-00805f9b34fb") // v1.2.0 and later
	charSensorState   = uuid.MustParse("f0cd1401-95da-4f4b-9ac8-aa55d312af0c")
	charCommand       = uuid.MustParse("f0cd1402-95da-4f4b-9ac8-aa55d312af0c")
	charCalibration   = uuid.MustParse("f0cd1502-95da-4f4b-9ac8-aa55d312af0c")
	charCurrent       = uuid.MustParse("f0cd1503-95da-4f4b-9ac8-aa55d312af0c")
	charCurrentAR2    = uuid.MustParse("f0cd1504-95da-4f4b-9ac8-aa55d312af0c") // Aranet2 only
	charTotalReadings = uuid.MustParse("f0cd2001-95da-4f4b-9ac8-aa55d312af0c")
	charInterval      = uuid.MustParse("f0cd2002-95da-4f4b-9ac8-aa55d312af0c")
	charHistoryV1     = uuid.MustParse("f0cd2003-95da-4f4b-9ac8-aa55d312af0c")
	charSecondsSince  = uuid.MustParse("f0cd2004-95da-4f4b-9ac8-aa55d312af0c")
	charHistoryV2     = uuid.MustParse("f0cd2005-95da-4f4b-9ac8-aa55d312af0c")
	charCurrentDet    = uuid.MustParse("f0cd3001-95da-4f4b-9ac8-aa55d312af0c")
	charCurrentAlt    = uuid.MustParse("f0cd3002-95da-4f4b-9ac8-aa55d312af0c")
	charCurrentAltAR2 = uuid.MustParse("f0cd3003-95da-4f4b-9ac8-aa55d312af0c") // Aranet2 only
)

// Endpoint names a logical characteristic of the sensor.
type Endpoint string

const (
	EndpointBatteryLevel       Endpoint = "battery_level"
	EndpointSensorState        Endpoint = "sensor_state"
	EndpointCommand            Endpoint = "command"
	EndpointCalibrationData    Endpoint = "calibration_data"
	EndpointCurrentReadings    Endpoint = "current_readings"
	EndpointCurrentReadingsAR2 Endpoint = "current_readings_ar2"
	EndpointTotalReadings      Endpoint = "total_readings"
	EndpointInterval           Endpoint = "interval"
	EndpointHistoryV1          Endpoint = "history_readings_v1"
	EndpointSecondsSinceUpdate Endpoint = "seconds_since_update"
	EndpointHistoryV2          Endpoint = "history_readings_v2"
	EndpointCurrentDetailed    Endpoint = "current_readings_detailed"
	EndpointCurrentAlt         Endpoint = "current_readings_alt"
	EndpointCurrentAltAR2      Endpoint = "current_readings_alt_ar2"
)

type uuidPair struct {
	service        uuid.UUID
	characteristic uuid.UUID
}

var endpointsByUUID = map[uuidPair]Endpoint{
	{serviceBattery, charBatteryLevel}:     EndpointBatteryLevel,
	{serviceSAFTehnika, charSensorState}:   EndpointSensorState,
	{serviceSAFTehnika, charCommand}:       EndpointCommand,
	{serviceSAFTehnika, charCalibration}:   EndpointCalibrationData,
	{serviceSAFTehnika, charCurrent}:       EndpointCurrentReadings,
	{serviceSAFTehnika, charCurrentAR2}:    EndpointCurrentReadingsAR2,
	{serviceSAFTehnika, charTotalReadings}: EndpointTotalReadings,
	{serviceSAFTehnika, charInterval}:      EndpointInterval,
	{serviceSAFTehnika, charHistoryV1}:     EndpointHistoryV1,
	{serviceSAFTehnika, charSecondsSince}:  EndpointSecondsSinceUpdate,
	{serviceSAFTehnika, charHistoryV2}:     EndpointHistoryV2,
	{serviceSAFTehnika, charCurrentDet}:    EndpointCurrentDetailed,
	{serviceSAFTehnika, charCurrentAlt}:    EndpointCurrentAlt,
	{serviceSAFTehnika, charCurrentAltAR2}: EndpointCurrentAltAR2,
}

// Classify maps a (service, characteristic) UUID pair to its endpoint name.
// Pairs outside the known set report false; firmware revisions legitimately
// expose supersets and subsets of the table.
func Classify(service, characteristic uuid.UUID) (Endpoint, bool) {
	e, ok := endpointsByUUID[uuidPair{service, characteristic}]
	return e, ok
}
