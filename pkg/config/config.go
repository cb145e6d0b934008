package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	ModeSim   = "sim"
	ModeChain = "chain"
)

// FundConfig 基金参数
type FundConfig struct {
	Strategy      string // hold | yield
	MinInvestment string // 以资产单位表示的十进制数，例如 "1.5"
	BuyFeeBps     uint16
	SellFeeBps    uint16
	FeeCollector  common.Address
	Owner         common.Address
	ReferralCode  uint16
	Receipt       common.Address // 可选：手动指定收益凭证
}

// ChainConfig 链上模式
type ChainConfig struct {
	RPCURL         string
	Asset          common.Address
	Pool           common.Address
	PrivateKey     string
	Mnemonic       string
	DerivationPath string
	// RPCRateLimit 每秒最多 RPC 请求数，0 不限速；RPCBurst 为突发容量
	RPCRateLimit float64
	RPCBurst     int
}

// SimConfig 模拟模式（内存账本）
type SimConfig struct {
	AssetSymbol   string
	AssetDecimals uint8
	ListReserve   bool // 是否在借贷池上架资产（关掉可模拟凭证发现失败）
}

// StoreConfig 状态快照存储
type StoreConfig struct {
	Type          string // json | badger
	Dir           string
	EncryptionKey string
}

// LogConfig 日志
type LogConfig struct {
	Level      string
	File       string
	JSON       bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Config 应用配置
type Config struct {
	Mode         string
	Fund         FundConfig
	Chain        ChainConfig
	Sim          SimConfig
	Store        StoreConfig
	JournalPath  string
	Listen       string
	AdminKey     string
	MetricsAddr  string
	SnapshotCron string
	Log          LogConfig
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// Get 获取全局配置（如果已加载）
func Get() *Config {
	return globalConfig
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	Mode string `yaml:"mode" json:"mode"`
	Fund struct {
		Strategy      string `yaml:"strategy" json:"strategy"`
		MinInvestment string `yaml:"min_investment" json:"min_investment"`
		BuyFeeBps     uint16 `yaml:"buy_fee_bps" json:"buy_fee_bps"`
		SellFeeBps    uint16 `yaml:"sell_fee_bps" json:"sell_fee_bps"`
		FeeCollector  string `yaml:"fee_collector" json:"fee_collector"`
		Owner         string `yaml:"owner" json:"owner"`
		ReferralCode  uint16 `yaml:"referral_code" json:"referral_code"`
		Receipt       string `yaml:"receipt" json:"receipt"`
	} `yaml:"fund" json:"fund"`
	Chain struct {
		RPCURL         string `yaml:"rpc_url" json:"rpc_url"`
		Asset          string `yaml:"asset" json:"asset"`
		Pool           string `yaml:"pool" json:"pool"`
		PrivateKey     string `yaml:"private_key" json:"private_key"`
		Mnemonic       string `yaml:"mnemonic" json:"mnemonic"`
		DerivationPath string  `yaml:"derivation_path" json:"derivation_path"`
		RPCRateLimit   float64 `yaml:"rpc_rate_limit" json:"rpc_rate_limit"`
		RPCBurst       int     `yaml:"rpc_burst" json:"rpc_burst"`
	} `yaml:"chain" json:"chain"`
	Sim struct {
		AssetSymbol   string `yaml:"asset_symbol" json:"asset_symbol"`
		AssetDecimals *uint8 `yaml:"asset_decimals" json:"asset_decimals"`
		ListReserve   *bool  `yaml:"list_reserve" json:"list_reserve"`
	} `yaml:"sim" json:"sim"`
	Store struct {
		Type          string `yaml:"type" json:"type"`
		Dir           string `yaml:"dir" json:"dir"`
		EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
	} `yaml:"store" json:"store"`
	Journal struct {
		Path string `yaml:"path" json:"path"`
	} `yaml:"journal" json:"journal"`
	Server struct {
		Listen   string `yaml:"listen" json:"listen"`
		AdminKey string `yaml:"admin_key" json:"admin_key"`
	} `yaml:"server" json:"server"`
	Metrics struct {
		Listen string `yaml:"listen" json:"listen"`
	} `yaml:"metrics" json:"metrics"`
	SnapshotCron string `yaml:"snapshot_cron" json:"snapshot_cron"`
	Log          struct {
		Level      string `yaml:"level" json:"level"`
		File       string `yaml:"file" json:"file"`
		JSON       bool   `yaml:"json" json:"json"`
		MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups" json:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	} `yaml:"log" json:"log"`
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置；filePath 为空时只用环境变量与默认值。
// 优先级：环境变量 > 配置文件 > 默认值（密钥类只建议放环境变量）。
func LoadFromFile(filePath string) (*Config, error) {
	cf := &ConfigFile{}
	if filePath != "" {
		var err error
		cf, err = loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}

	simDecimals := uint8(6)
	if cf.Sim.AssetDecimals != nil {
		simDecimals = *cf.Sim.AssetDecimals
	}
	listReserve := true
	if cf.Sim.ListReserve != nil {
		listReserve = *cf.Sim.ListReserve
	}

	cfg := &Config{
		Mode: strings.ToLower(getEnv("SHAREFUND_MODE", orDefault(cf.Mode, ModeSim))),
		Fund: FundConfig{
			Strategy:      strings.ToLower(getEnv("SHAREFUND_STRATEGY", orDefault(cf.Fund.Strategy, "hold"))),
			MinInvestment: orDefault(cf.Fund.MinInvestment, "0"),
			BuyFeeBps:     uint16(parseIntEnv("SHAREFUND_BUY_FEE_BPS", int(cf.Fund.BuyFeeBps))),
			SellFeeBps:    uint16(parseIntEnv("SHAREFUND_SELL_FEE_BPS", int(cf.Fund.SellFeeBps))),
			FeeCollector:  common.HexToAddress(getEnv("SHAREFUND_FEE_COLLECTOR", cf.Fund.FeeCollector)),
			Owner:         common.HexToAddress(getEnv("SHAREFUND_OWNER", cf.Fund.Owner)),
			ReferralCode:  cf.Fund.ReferralCode,
			Receipt:       common.HexToAddress(cf.Fund.Receipt),
		},
		Chain: ChainConfig{
			RPCURL:         getEnv("SHAREFUND_RPC_URL", cf.Chain.RPCURL),
			Asset:          common.HexToAddress(cf.Chain.Asset),
			Pool:           common.HexToAddress(cf.Chain.Pool),
			PrivateKey:     getEnv("SHAREFUND_PRIVATE_KEY", cf.Chain.PrivateKey),
			Mnemonic:       getEnv("SHAREFUND_MNEMONIC", cf.Chain.Mnemonic),
			DerivationPath: cf.Chain.DerivationPath,
			RPCRateLimit:   cf.Chain.RPCRateLimit,
			RPCBurst:       orDefaultInt(cf.Chain.RPCBurst, 5),
		},
		Sim: SimConfig{
			AssetSymbol:   orDefault(cf.Sim.AssetSymbol, "USDC"),
			AssetDecimals: simDecimals,
			ListReserve:   listReserve,
		},
		Store: StoreConfig{
			Type:          orDefault(cf.Store.Type, "json"),
			Dir:           orDefault(cf.Store.Dir, "data/state"),
			EncryptionKey: getEnv("SHAREFUND_STORE_KEY", cf.Store.EncryptionKey),
		},
		JournalPath:  orDefault(cf.Journal.Path, "data/journal.db"),
		Listen:       getEnv("SHAREFUND_LISTEN", orDefault(cf.Server.Listen, ":8080")),
		AdminKey:     getEnv("SHAREFUND_ADMIN_KEY", cf.Server.AdminKey),
		MetricsAddr:  cf.Metrics.Listen,
		SnapshotCron: orDefault(cf.SnapshotCron, "@every 1m"),
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", orDefault(cf.Log.Level, "info")),
			File:       getEnv("LOG_FILE", cf.Log.File),
			JSON:       cf.Log.JSON,
			MaxSizeMB:  orDefaultInt(cf.Log.MaxSizeMB, 100),
			MaxBackups: orDefaultInt(cf.Log.MaxBackups, 3),
			MaxAgeDays: orDefaultInt(cf.Log.MaxAgeDays, 7),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	globalConfig = cfg
	configFilePath = filePath
	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSim:
	case ModeChain:
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("chain.rpc_url 未配置")
		}
		if c.Chain.Asset == (common.Address{}) {
			return fmt.Errorf("chain.asset 未配置")
		}
		if c.Chain.PrivateKey == "" && c.Chain.Mnemonic == "" {
			return fmt.Errorf("SHAREFUND_PRIVATE_KEY 或 SHAREFUND_MNEMONIC 未配置")
		}
		if c.Fund.Strategy == "yield" && c.Chain.Pool == (common.Address{}) {
			return fmt.Errorf("yield 策略需要 chain.pool")
		}
	default:
		return fmt.Errorf("未知 mode: %q (sim|chain)", c.Mode)
	}
	switch c.Fund.Strategy {
	case "hold", "yield":
	default:
		return fmt.Errorf("未知策略: %q (hold|yield)", c.Fund.Strategy)
	}
	if c.Fund.BuyFeeBps > 1000 || c.Fund.SellFeeBps > 1000 {
		return fmt.Errorf("费率不能超过 1000 bps")
	}
	if c.Fund.Owner == (common.Address{}) {
		return fmt.Errorf("fund.owner 未配置")
	}
	if c.Fund.FeeCollector == (common.Address{}) {
		return fmt.Errorf("fund.fee_collector 未配置")
	}
	if c.AdminKey == "" {
		return fmt.Errorf("SHAREFUND_ADMIN_KEY 未配置")
	}
	return nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
