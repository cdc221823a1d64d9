package cfg

import "time"

const (
	AuthBearer = "bearer"
	AuthAPIKey = "x-api-key"
)

type Cfg struct {
	// SEC API
	APIKey     string
	APIURL     string
	AuthScheme string
	UserAgent  string

	// Query window and paging
	Lookback time.Duration
	PageSize int
	Timeout  time.Duration

	// Output
	FeedPath  string
	DataDir   string
	MaxItems  int
	RulesFile string
	BaseUrl   string
	ServeAddr string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

