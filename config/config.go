package config

import (
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 结构体用于存储应用程序的配置信息
type Config struct {
	Port           string `mapstructure:"PORT"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBMaxOpenConns int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	TokenTTLHours  int    `mapstructure:"TOKEN_TTL_HOURS"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	Debug          bool   `mapstructure:"DEBUG"` // 是否开启调试模式
	FrontendURL    string `mapstructure:"FRONTEND_URL"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	StorageDriver      string `mapstructure:"STORAGE_DRIVER"` // local / s3 / gcs
	LocalStoragePath   string `mapstructure:"LOCAL_STORAGE_PATH"`
	S3Region           string `mapstructure:"S3_REGION"`
	S3Bucket           string `mapstructure:"S3_BUCKET"`
	GCSProjectID       string `mapstructure:"GCS_PROJECT_ID"`
	GCSBucketName      string `mapstructure:"GCS_BUCKET_NAME"`
	GCSCredentialsFile string `mapstructure:"GCS_CREDENTIALS_FILE"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"` // 逗号分隔
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	DonationRatePerSec float64 `mapstructure:"DONATION_RATE_PER_SEC"`
	DonationRateBurst  int     `mapstructure:"DONATION_RATE_BURST"`

	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
}

// AppConfig 是全局配置变量
var AppConfig Config

var defaults = map[string]interface{}{
	"PORT":                  "5000",
	"DB_HOST":               "",
	"DB_PORT":               "3306",
	"DB_USER":               "",
	"DB_PASSWORD":           "",
	"DB_NAME":               "",
	"DB_MAX_OPEN_CONNS":     25,
	"JWT_SECRET":            "",
	"TOKEN_TTL_HOURS":       24 * 7,
	"LOG_LEVEL":             "info",
	"DEBUG":                 false,
	"FRONTEND_URL":          "http://localhost:5173",
	"SMTP_HOST":             "",
	"SMTP_PORT":             465,
	"SMTP_USERNAME":         "",
	"SMTP_PASSWORD":         "",
	"STORAGE_DRIVER":        "local",
	"LOCAL_STORAGE_PATH":    "./uploads",
	"S3_REGION":             "us-west-2",
	"S3_BUCKET":             "",
	"GCS_PROJECT_ID":        "",
	"GCS_BUCKET_NAME":       "",
	"GCS_CREDENTIALS_FILE":  "",
	"REDIS_ADDR":            "",
	"REDIS_PASSWORD":        "",
	"REDIS_DB":              0,
	"KAFKA_BROKERS":         "",
	"KAFKA_TOPIC":           "crowdfunding.events",
	"DONATION_RATE_PER_SEC": 1.0,
	"DONATION_RATE_BURST":   5,
	"ADMIN_EMAIL":           "",
	"ADMIN_PASSWORD":        "",
}

// Init 函数用于初始化配置
func Init() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("警告：无法加载 .env 文件: %v", err)
	}

	AppConfig = Load()
	validateConfig()

	if AppConfig.Debug {
		gin.SetMode(gin.DebugMode)
		log.Println("应用程序运行在调试模式")
	} else {
		gin.SetMode(gin.ReleaseMode)
		log.Println("应用程序运行在生产模式")
	}

	log.Printf("配置加载完成。数据库：%s:%s", AppConfig.DBHost, AppConfig.DBPort)
}

// Load 从环境变量读取配置，未设置的键使用默认值
func Load() Config {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("解析配置失败: %v", err)
	}
	return cfg
}

// KafkaBrokerList 返回 Kafka broker 列表
func (c Config) KafkaBrokerList() []string {
	if strings.TrimSpace(c.KafkaBrokers) == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// SMTPEnabled SMTP 配置完整时才发送邮件
func (c Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

func validateConfig() {
	if AppConfig.DBHost == "" || AppConfig.DBUser == "" || AppConfig.DBName == "" {
		log.Fatal("错误：数据库配置不完整")
	}
	if AppConfig.JWTSecret == "" {
		log.Fatal("错误：JWT密钥未设置")
	}
	if !AppConfig.SMTPEnabled() {
		log.Println("警告：SMTP配置不完整，邮件通知已关闭")
	}
}
