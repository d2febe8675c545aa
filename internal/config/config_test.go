package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when no config path is given", func() {
			It("resolves to DefaultConfig", func() {
				cfg, err := Load("")
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Deadline).To(Equal(15 * time.Second))
				Expect(cfg.Policy.Path).To(Equal("config/policy.yaml"))
				Expect(cfg.Providers.Order).To(Equal([]string{"anthropic", "bedrock", "langchain"}))
				Expect(cfg.Logging.Level).To(Equal("info"))
			})
		})

		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  deadline: "20s"

policy:
  path: "/etc/sentinel-gate/policy.yaml"

redis:
  addr: "localhost:6379"
  db: 2

providers:
  order: ["anthropic", "langchain"]
  anthropic:
    api_key: "sk-test-key"
    model: "claude-3-5-sonnet-20241022"
  langchain:
    base_url: "http://localhost:9000/v1"
    model: "local-model"

logging:
  level: "debug"
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("loads the file over the defaults", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Server.Deadline).To(Equal(20 * time.Second))
				Expect(cfg.Policy.Path).To(Equal("/etc/sentinel-gate/policy.yaml"))
				Expect(cfg.Redis.Addr).To(Equal("localhost:6379"))
				Expect(cfg.Redis.DB).To(Equal(2))
				Expect(cfg.Providers.Order).To(Equal([]string{"anthropic", "langchain"}))
				Expect(cfg.Providers.Anthropic.APIKey).To(Equal("sk-test-key"))
				Expect(cfg.Logging.Level).To(Equal("debug"))

				// Fields absent from the file still resolve from DefaultConfig.
				Expect(cfg.Providers.Bedrock.Region).To(Equal("us-east-1"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
policy:
  path: "/etc/sentinel-gate/policy.yaml"
`
				err := os.WriteFile(configFile, []byte(minimalConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("fills every other field from defaults", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(cfg.Policy.Path).To(Equal("/etc/sentinel-gate/policy.yaml"))
				Expect(cfg.Server.Deadline).To(Equal(15 * time.Second))
			})
		})

		Context("when config file does not exist", func() {
			It("falls back to defaults rather than erroring", func() {
				cfg, err := Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Deadline).To(Equal(15 * time.Second))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := `
server:
  deadline: "20s"
  invalid: [
`
				err := os.WriteFile(configFile, []byte(invalidConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when the provider order names an unknown provider", func() {
			BeforeEach(func() {
				badOrder := `
providers:
  order: ["anthropic", "openai"]
`
				err := os.WriteFile(configFile, []byte(badOrder), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns a configuration error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("unknown provider"))
			})
		})

		Context("when logging.level is not one of the accepted levels", func() {
			BeforeEach(func() {
				badLevel := `
logging:
  level: "verbose"
`
				err := os.WriteFile(configFile, []byte(badLevel), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns a validation error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("when SENTINEL_GATE_ environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("SENTINEL_GATE_SERVER_DEADLINE", "30s")
				os.Setenv("SENTINEL_GATE_LOGGING_LEVEL", "warn")
			})

			AfterEach(func() {
				os.Unsetenv("SENTINEL_GATE_SERVER_DEADLINE")
				os.Unsetenv("SENTINEL_GATE_LOGGING_LEVEL")
			})

			It("overrides both the defaults and the file", func() {
				cfg, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Server.Deadline).To(Equal(30 * time.Second))
				Expect(cfg.Logging.Level).To(Equal("warn"))
			})
		})
	})

	Describe("Validate", func() {
		var cfg *Config

		BeforeEach(func() {
			cfg = DefaultConfig()
		})

		It("accepts the default configuration", func() {
			Expect(Validate(cfg)).To(Succeed())
		})

		It("rejects a zero deadline", func() {
			cfg.Server.Deadline = 0
			Expect(Validate(cfg)).To(HaveOccurred())
		})

		It("rejects an empty policy path", func() {
			cfg.Policy.Path = ""
			Expect(Validate(cfg)).To(HaveOccurred())
		})

		It("rejects an unrecognized logging level", func() {
			cfg.Logging.Level = "trace"
			Expect(Validate(cfg)).To(HaveOccurred())
		})

		It("rejects an unknown provider name in the order", func() {
			cfg.Providers.Order = []string{"openai"}
			err := Validate(cfg)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("openai"))
		})
	})
})
