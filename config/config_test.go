package config_test

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/metric-balancer/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	var tempDir string

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with valid config file", func() {
			BeforeEach(func() {
				configContent := `
server:
  address: ":4242"
  environment: "dev"

admin:
  address: ":8080"

backends:
  - host: "h1"
    tcp_port: 4243
  - host: "h2"
    tcp_port: 4243

assignments:
  file: "assignments.csv"

rebalance:
  full_delay: "5m"
  delay: "10m"
  period: "2m"
  window: "30m"
  persist_delay: "10m"
  persist_period: "60m"

health_check:
  interval: "10s"

pool:
  max_idle: 2
  dial_timeout: "5s"

logging:
  level: "info"
`
				configPath := filepath.Join(tempDir, "config.yaml")
				err := os.WriteFile(configPath, []byte(configContent), 0644)
				Expect(err).NotTo(HaveOccurred())

				err = os.Chdir(tempDir)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load()
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())
			})

			It("should parse the backend fleet", func() {
				cfg, _ := config.Load()
				Expect(cfg.Backends).To(HaveLen(2))
				Expect(cfg.Backends[0].Host).To(Equal("h1"))
				Expect(cfg.Backends[0].TCPPort).To(Equal(4243))
			})

			It("should parse rebalance timings", func() {
				cfg, _ := config.Load()
				Expect(cfg.Rebalance.Window).To(Equal("30m"))
				Expect(cfg.Rebalance.Period).To(Equal("2m"))
			})

			It("should parse the assignment file path", func() {
				cfg, _ := config.Load()
				Expect(cfg.Assignments.File).To(Equal("assignments.csv"))
			})
		})

		Context("with an invalid config file", func() {
			It("should reject a backend without a host", func() {
				configContent := `
backends:
  - tcp_port: 4243
`
				configPath := filepath.Join(tempDir, "config.yaml")
				err := os.WriteFile(configPath, []byte(configContent), 0644)
				Expect(err).NotTo(HaveOccurred())
				Expect(os.Chdir(tempDir)).To(Succeed())

				_, err = config.Load()
				Expect(err).To(HaveOccurred())
			})

			It("should reject a backend with an out-of-range port", func() {
				configContent := `
backends:
  - host: "h1"
    tcp_port: 70000
`
				configPath := filepath.Join(tempDir, "config.yaml")
				err := os.WriteFile(configPath, []byte(configContent), 0644)
				Expect(err).NotTo(HaveOccurred())
				Expect(os.Chdir(tempDir)).To(Succeed())

				_, err = config.Load()
				Expect(err).To(HaveOccurred())
			})
		})

		Context("without a config file", func() {
			BeforeEach(func() {
				Expect(os.Chdir(tempDir)).To(Succeed())
			})

			It("should fail validation because backends are required", func() {
				_, err := config.Load()
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
