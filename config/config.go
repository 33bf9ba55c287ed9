package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Identity IdentityConfig `mapstructure:"identity"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	ETCD     ETCDConfig     `mapstructure:"etcd"`
	Lock     LockConfig     `mapstructure:"lock"`
	Session  SessionConfig  `mapstructure:"session"`
	Election ElectionConfig `mapstructure:"election"`
	Storage  StorageConfig  `mapstructure:"storage"`
	GraphQL  GraphQLConfig  `mapstructure:"graphql"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// StoreConfig 文档数据库驱动: firestore | mysql | memory
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type FirebaseConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	StorageBucket   string `mapstructure:"storage_bucket"`
}

// IdentityConfig Identity Toolkit REST 接口配置
type IdentityConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MySQLConfig struct {
	Master       string `mapstructure:"master"`
	Slave        string `mapstructure:"slave"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	// 数据存储Redis
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ResultsTTL  time.Duration `mapstructure:"results_ttl"`

	// Redlock使用的Redis节点
	LockAddresses []string `mapstructure:"lock_addresses"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
	Workers int      `mapstructure:"workers"`
}

type ETCDConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
}

// LockConfig 分布式锁驱动: etcd | redis | none
type LockConfig struct {
	Driver     string        `mapstructure:"driver"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

type SessionConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Issuer string        `mapstructure:"issuer"`
}

type ElectionConfig struct {
	AdminSignupCode   string        `mapstructure:"admin_signup_code"`
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
}

type StorageConfig struct {
	MaxImageBytes int64  `mapstructure:"max_image_bytes"`
	KeyPrefix     string `mapstructure:"key_prefix"`
}

type GraphQLConfig struct {
	Path string `mapstructure:"path"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("store.driver", "firestore")
	v.SetDefault("identity.base_url", "https://identitytoolkit.googleapis.com/v1")
	v.SetDefault("identity.timeout", 10*time.Second)
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.max_retries", 2)
	v.SetDefault("redis.timeout", 3*time.Second)
	v.SetDefault("redis.results_ttl", 30*time.Second)
	v.SetDefault("kafka.topic", "campusvote.votes")
	v.SetDefault("kafka.workers", 4)
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("lock.driver", "etcd")
	v.SetDefault("lock.timeout", 10*time.Second)
	v.SetDefault("lock.retry_count", 3)
	v.SetDefault("session.ttl", 2*time.Hour)
	v.SetDefault("session.issuer", "campusvote")
	v.SetDefault("election.scheduler_interval", 30*time.Second)
	v.SetDefault("storage.max_image_bytes", 5<<20)
	v.SetDefault("storage.key_prefix", "candidates")
	v.SetDefault("graphql.path", "/graphql")
}

// LoadConfig 加载配置文件，环境变量 CAMPUSVOTE_<SECTION>_<KEY> 可覆盖文件中的值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetEnvPrefix("campusvote")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &AppConfig, nil
}

// Validate 检查驱动组合是否可用
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "firestore":
		if c.Firebase.ProjectID == "" {
			return fmt.Errorf("store.driver=firestore 需要 firebase.project_id")
		}
	case "mysql":
		if c.MySQL.Master == "" {
			return fmt.Errorf("store.driver=mysql 需要 mysql.master")
		}
	case "memory":
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Store.Driver)
	}

	switch c.Lock.Driver {
	case "etcd", "redis", "none":
	default:
		return fmt.Errorf("未知的分布式锁驱动: %s", c.Lock.Driver)
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret 不能为空")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.enabled=true 需要 kafka.brokers")
	}
	return nil
}
