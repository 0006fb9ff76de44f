package config

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/Astemirdum/circulation-service/pkg/auth"
	"github.com/Astemirdum/circulation-service/pkg/kafka"
	"github.com/Astemirdum/circulation-service/pkg/logger"
	"github.com/Astemirdum/circulation-service/pkg/postgres"
	"github.com/Astemirdum/circulation-service/pkg/sqlite"
	jsoniter "github.com/json-iterator/go"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type HTTPServer struct {
	Host         string        `yaml:"host" envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port         string        `yaml:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `yaml:"readTimeout" envconfig:"HTTP_READ" default:"10s"`
	WriteTimeout time.Duration `yaml:"writeTimeout" envconfig:"HTTP_WRITE" default:"30s"`
}

// Policy holds the circulation rules. DailyFine is a decimal string.
type Policy struct {
	ReservationLimit  int           `yaml:"reservationLimit" envconfig:"RESERVATION_LIMIT" default:"3"`
	ReservationWindow time.Duration `yaml:"reservationWindow" envconfig:"RESERVATION_WINDOW" default:"168h"`
	LoanPeriod        time.Duration `yaml:"loanPeriod" envconfig:"LOAN_PERIOD" default:"336h"`
	DailyFine         string        `yaml:"dailyFine" envconfig:"DAILY_FINE" default:"0.50"`
	RetryAttempts     int           `yaml:"retryAttempts" envconfig:"RETRY_ATTEMPTS" default:"6"`
	RetryBaseDelay    time.Duration `yaml:"retryBaseDelay" envconfig:"RETRY_BASE_DELAY" default:"10ms"`
	SweepInterval     time.Duration `yaml:"sweepInterval" envconfig:"SWEEP_INTERVAL" default:"1m"`
}

type Config struct {
	Server        HTTPServer  `yaml:"server"`
	StorageDriver string      `yaml:"storageDriver" envconfig:"STORAGE_DRIVER" default:"postgres"`
	Database      postgres.DB `yaml:"db"`
	Sqlite        sqlite.DB   `yaml:"sqlite"`
	Kafka         kafka.Config
	Auth          auth.Config
	Policy        Policy     `yaml:"policy"`
	PolicyFile    string     `yaml:"-" envconfig:"POLICY_FILE"`
	Log           logger.Log `yaml:"log"`
}

var (
	once sync.Once
	cfg  Config
)

// NewConfig reads config from environment. A POLICY_FILE overlays the policy
// section, and options override both.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		if err := envconfig.Process("", &config); err != nil {
			log.Fatal("NewConfig ", err)
		}
		if config.PolicyFile != "" {
			if err := loadPolicy(config.PolicyFile, &config.Policy); err != nil {
				log.Fatal("NewConfig ", err)
			}
		}
		for _, op := range ops {
			op(&config)
		}
		cfg = config
		printConfig(cfg)
	})

	return &cfg
}

func loadPolicy(path string, p *Policy) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read policy file")
	}
	return errors.Wrapf(yaml.Unmarshal(data, p), "parse policy file %s", path)
}

func printConfig(cfg Config) {
	cfg.Database.Password = "***"
	cfg.Auth.JWTSecret = "***"
	jscfg, _ := jsoniter.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}
