package scanning

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubRunner struct {
	stdout []byte
	stderr []byte
	err    error

	name  string
	args  []string
	stdin []byte
}

func (s *stubRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	s.name = name
	s.args = args
	s.stdin = stdin
	return s.stdout, s.stderr, s.err
}

var _ = Describe("Tesseract", func() {
	var (
		runner     *stubRunner
		recognizer *Tesseract
		cfg        TesseractConfig
		text       string
		err        error
	)

	BeforeEach(func() {
		runner = &stubRunner{}
		cfg = TesseractConfig{Lang: "chi_sim+eng", PSM: 6}
	})

	JustBeforeEach(func() {
		recognizer = NewTesseract(cfg, runner)
		text, err = recognizer.Recognize(context.Background(), []byte("\x89PNG fake"), "image/png")
	})

	When("tesseract prints text", func() {
		BeforeEach(func() {
			runner.stdout = []byte("  Corner Cafe\n\n合計 ¥1,280  \r\n\f")
		})

		It("pipes the image through stdin with the configured language", func() {
			Expect(runner.name).To(Equal("tesseract"))
			Expect(runner.args).To(Equal([]string{"stdin", "stdout", "-l", "chi_sim+eng", "--psm", "6"}))
			Expect(runner.stdin).To(Equal([]byte("\x89PNG fake")))
		})

		It("returns the non-empty lines in order", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("  Corner Cafe\n合計 ¥1,280"))
		})
	})

	When("a tessdata directory is configured", func() {
		BeforeEach(func() {
			cfg.PSM = 0
			cfg.TessdataDir = "/opt/tessdata"
			runner.stdout = []byte("x")
		})

		It("passes it along", func() {
			Expect(runner.args).To(Equal([]string{"stdin", "stdout", "-l", "chi_sim+eng", "--tessdata-dir", "/opt/tessdata"}))
		})
	})

	When("nothing is recognized", func() {
		BeforeEach(func() {
			runner.stdout = []byte("\n \n")
		})

		It("reports an empty result", func() {
			Expect(err).To(MatchError(ErrEmptyResult))
		})
	})

	When("the binary fails", func() {
		BeforeEach(func() {
			runner.stderr = []byte("Error opening data file")
			runner.err = errors.New("exit status 1")
		})

		It("reports the backend as unavailable", func() {
			Expect(err).To(MatchError(ErrBackendUnavailable))
			Expect(err.Error()).To(ContainSubstring("Error opening data file"))
		})
	})
})
