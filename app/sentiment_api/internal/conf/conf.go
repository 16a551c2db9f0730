package conf

type Bootstrap struct {
	Server    *Server
	Sentiment *Sentiment
}

type Server struct {
	Http *HTTP
}

type HTTP struct {
	Addr    string
	Timeout string
}

type Sentiment struct {
	Llm         *LLM         `json:"llm"`
	News        *News        `json:"news"`
	Cache       *Cache       `json:"cache"`
	Concurrency *Concurrency `json:"concurrency"`
	Storage     *Storage     `json:"storage"`
	Log         *Log         `json:"log"`
}

type LLM struct {
	Provider string `json:"provider"`
	BaseUrl  string `json:"base_url"`
	ApiKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type News struct {
	Source       string `json:"source"`
	LookbackDays int32  `json:"lookback_days"`
	MaxArticles  int32  `json:"max_articles"`
	NewsapiKey   string `json:"newsapi_key"`
	FinnhubKey   string `json:"finnhub_key"`
}

type Cache struct {
	Enabled  *bool    `json:"enabled"`
	Backend  string   `json:"backend"`
	Dir      string   `json:"dir"`
	TtlHours *float64 `json:"ttl_hours"`
	RedisUrl string   `json:"redis_url"`
}

type Concurrency struct {
	Workers int32 `json:"workers"`
	Qps     int32 `json:"qps"`
	Rpm     int32 `json:"rpm"`
}

type Storage struct {
	Driver     string `json:"driver"`
	SqlitePath string `json:"sqlite_path"`
	Db         *DB    `json:"db"`
}

type DB struct {
	Host     string `json:"host"`
	Port     int32  `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type Log struct {
	Level string `json:"level"`
	File  string `json:"file"`
}
