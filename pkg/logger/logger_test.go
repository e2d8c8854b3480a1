package logger_test

import (
	"bytes"
	"encoding/json"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/engramlabs/engram/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("creates a default text logger", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("hello", "key", "value")

			output := buf.String()
			Expect(output).To(ContainSubstring("hello"))
			Expect(output).To(ContainSubstring("key"))
			Expect(output).To(ContainSubstring("value"))
		})

		It("respects debug level", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithDebug(true))
			l.Debug("debug msg")

			Expect(buf.String()).To(ContainSubstring("debug msg"))
		})

		It("suppresses debug output at the default level", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Debug("debug msg")

			Expect(buf.String()).To(BeEmpty())
		})

		It("emits JSON records when configured", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.Info("structured", "count", 3)

			line := strings.TrimSpace(buf.String())
			var record map[string]any
			Expect(json.Unmarshal([]byte(line), &record)).To(Succeed())
			Expect(record["msg"]).To(Equal("structured"))
			Expect(record["count"]).To(BeNumerically("==", 3))
		})

		It("emits human-readable records with the pretty handler", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true))
			l.Info("colorful", "key", "value")

			Expect(buf.String()).To(ContainSubstring("colorful"))
			Expect(buf.String()).To(ContainSubstring("key"))
		})
	})

	Describe("Multi", func() {
		It("fans records out to every handler", func() {
			var a, b bytes.Buffer
			l := logger.Multi(
				logger.New(logger.WithWriter(&a)),
				logger.New(logger.WithWriter(&b), logger.WithJSON(true)),
			)
			l.Info("fanout")

			Expect(a.String()).To(ContainSubstring("fanout"))
			Expect(b.String()).To(ContainSubstring("fanout"))
		})
	})
})
