package config

// Chat definition chat_service YAML structure
type Chat struct {
	Port     string         `mapstructure:"port"`
	MongoSQL DatabaseConfig `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// RedisConfig definition redis setting
type RedisConfig struct {
	RedisDB int `mapstructure:"redis_db"`
	// Addr standalone address, used when no sentinel is configured in .env
	Addr string `mapstructure:"addr"`
}

// JWTConfig definition token setting
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// EngineConfig definition chat sync engine limits
type EngineConfig struct {
	// BatchDeleteLimit max messages removed by one batch delete
	BatchDeleteLimit int `mapstructure:"batch_delete_limit"`
	// MembershipQueryLimit max ids in one "id in set" query
	MembershipQueryLimit int `mapstructure:"membership_query_limit"`
	// StreamBuffer buffered delta batches per subscription
	StreamBuffer int `mapstructure:"stream_buffer"`
}

const (
	defaultBatchDeleteLimit     = 500
	defaultMembershipQueryLimit = 10
	defaultStreamBuffer         = 16
)

// WithDefaults fill zero values
func (e EngineConfig) WithDefaults() EngineConfig {
	if e.BatchDeleteLimit <= 0 {
		e.BatchDeleteLimit = defaultBatchDeleteLimit
	}
	if e.MembershipQueryLimit <= 0 {
		e.MembershipQueryLimit = defaultMembershipQueryLimit
	}
	if e.StreamBuffer <= 0 {
		e.StreamBuffer = defaultStreamBuffer
	}
	return e
}
