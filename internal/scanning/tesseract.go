package scanning

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Tesseract implements the Recognizer interface with the tesseract CLI
type Tesseract struct {
	binary      string
	lang        string
	psm         int
	tessdataDir string
	runner      Runner
}

// TesseractConfig configures the tesseract invocation
type TesseractConfig struct {
	Binary      string // binary name or absolute path; default "tesseract"
	Lang        string // default "eng"; e.g. "chi_sim+jpn+eng"
	PSM         int    // page segmentation mode, 0 = tesseract default
	TessdataDir string
}

// NewTesseract creates a Recognizer backed by tesseract
func NewTesseract(cfg TesseractConfig, runner Runner) *Tesseract {
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Tesseract{
		binary:      cfg.Binary,
		lang:        cfg.Lang,
		psm:         cfg.PSM,
		tessdataDir: cfg.TessdataDir,
		runner:      runner,
	}
}

// Recognize pipes the image through tesseract and returns the non-empty lines in reading order
func (t *Tesseract) Recognize(ctx context.Context, imageData []byte, contentType string) (string, error) {
	finalImageData, _, _, err := prepareImageData(imageData, contentType)
	if err != nil {
		return "", err
	}

	// tesseract stdin stdout -l <lang>
	args := []string{"stdin", "stdout", "-l", t.lang}
	if t.psm > 0 {
		args = append(args, "--psm", strconv.Itoa(t.psm))
	}
	if t.tessdataDir != "" {
		args = append(args, "--tessdata-dir", t.tessdataDir)
	}

	out, errb, err := t.runner.Run(ctx, finalImageData, t.binary, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return "", unavailable(fmt.Sprintf("tesseract (%s)", truncate(strings.TrimSpace(string(errb)), 256)), err)
	}

	lines := make([]string, 0, 32)
	for _, ln := range strings.Split(string(out), "\n") {
		ln = strings.TrimRight(ln, " \t\r\f")
		if strings.TrimSpace(ln) == "" {
			continue
		}
		lines = append(lines, ln)
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("tesseract recognized no text: %w", ErrEmptyResult)
	}
	return strings.Join(lines, "\n"), nil
}
