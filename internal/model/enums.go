package model

// ObserverType discriminates the two observer payload shapes.
type ObserverType string

const (
	ObserverPerson       ObserverType = "Person"
	ObserverOrganization ObserverType = "Organization"
)

// PhotometerModel identifies the device family a file came from.
type PhotometerModel string

const (
	PhotometerTAS PhotometerModel = "TAS" // high-cadence, multi-reading
	PhotometerSQM PhotometerModel = "SQM" // single-reading
)

// Sensor is the photometer sensor model.
type Sensor string

// SensorTSL237 is the default sensor for both device families.
const SensorTSL237 Sensor = "TSL237"

// ValidState tracks whether an observer affiliation record is still current.
type ValidState string

const (
	ValidCurrent ValidState = "Current"
	ValidExpired ValidState = "Expired"
)

// TemperatureMeas classifies how an observation's aggregate temperature was obtained.
type TemperatureMeas string

const (
	TemperatureUnknown      TemperatureMeas = "Unknown"
	TemperatureInitialFinal TemperatureMeas = "Initial-Final"
	TemperatureMinMax       TemperatureMeas = "Min-Max"
	TemperatureUnique       TemperatureMeas = "Unique"
	TemperatureMedian       TemperatureMeas = "Median"
)

// HumidityMeas classifies how an observation's humidity readings were obtained.
type HumidityMeas string

const (
	HumidityUnknown      HumidityMeas = "Unknown"
	HumidityInitialFinal HumidityMeas = "Initial-Final"
	HumidityMinMax       HumidityMeas = "Min-Max"
	HumidityUnique       HumidityMeas = "Unique"
	HumidityMedian       HumidityMeas = "Median"
)

// TimestampMeas classifies the meaning of an observation's timestamp pair.
type TimestampMeas string

const (
	TimestampUnknown      TimestampMeas = "Unknown"
	TimestampInitialFinal TimestampMeas = "Initial-Final"
	TimestampInitial      TimestampMeas = "Initial"
	TimestampFinal        TimestampMeas = "Final"
	TimestampUnique       TimestampMeas = "Unique"
	TimestampMidterm      TimestampMeas = "Midterm"
)

// CoordinatesMeas classifies how a location's coordinates were derived.
type CoordinatesMeas string

const (
	CoordinatesUnknown CoordinatesMeas = "Unknown"
	CoordinatesSingle  CoordinatesMeas = "Single"
	CoordinatesMedian  CoordinatesMeas = "Median"
)

// PopulationCentre is a Nominatim population centre category, in priority order.
type PopulationCentre string

const (
	PopCentreVillage      PopulationCentre = "village"
	PopCentreMunicipality PopulationCentre = "municipality"
	PopCentreTown         PopulationCentre = "town"
	PopCentreCity         PopulationCentre = "city"
)
