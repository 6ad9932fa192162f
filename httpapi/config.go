package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr           string
	BasePath       string
	RatePerMinute  float64
	Burst          int
	StreamHistory  int
	MaxImportBytes int64
}
