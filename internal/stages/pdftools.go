package stages

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const pdfToolTimeout = 30 * time.Second

var pagesLineRe = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)

// pdfTools wraps the external pdfinfo/pdftotext/pdftoppm binaries the text
// extraction and OCR stages shell out to.
type pdfTools struct {
	pdfinfoPath   string
	pdftotextPath string
	pdftoppmPath  string
}

func newPdfTools(pdfinfoPath, pdftotextPath, pdftoppmPath string) *pdfTools {
	return &pdfTools{pdfinfoPath: pdfinfoPath, pdftotextPath: pdftotextPath, pdftoppmPath: pdftoppmPath}
}

// pageCount shells out to pdfinfo and parses the "Pages: N" line.
func (t *pdfTools) pageCount(ctx context.Context, path string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, pdfToolTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.pdfinfoPath, path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("pdfinfo %s: %w", path, err)
	}

	match := pagesLineRe.FindStringSubmatch(out.String())
	if match == nil {
		return 0, fmt.Errorf("pdfinfo %s: could not parse page count", path)
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, fmt.Errorf("pdfinfo %s: %w", path, err)
	}
	return n, nil
}

// extractPageText shells out to pdftotext -f N -l N to extract a single
// page's native text layer.
func (t *pdfTools) extractPageText(ctx context.Context, path string, page int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pdfToolTimeout)
	defer cancel()

	pageStr := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, t.pdftotextPath, "-f", pageStr, "-l", pageStr, "-layout", path, "-")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftotext %s p%d: %w (%s)", path, page, err, strings.TrimSpace(stderr.String()))
	}
	return out.String(), nil
}

// rasterizePage shells out to pdftoppm to render a single page to a PNG
// file in dir, returning the rendered file's path.
func (t *pdfTools) rasterizePage(ctx context.Context, path string, page int, dir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pdfToolTimeout)
	defer cancel()

	prefix := dir + "/page"
	pageStr := strconv.Itoa(page)
	cmd := exec.CommandContext(ctx, t.pdftoppmPath, "-f", pageStr, "-l", pageStr, "-png", "-r", "200", path, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("pdftoppm %s p%d: %w (%s)", path, page, err, strings.TrimSpace(stderr.String()))
	}

	// pdftoppm pads the page number in its output filename to match the
	// widest page number rendered in the run; with -f/-l set to the same
	// single page, it always emits an unpadded suffix.
	candidates := []string{
		fmt.Sprintf("%s-%d.png", prefix, page),
		fmt.Sprintf("%s-%02d.png", prefix, page),
		fmt.Sprintf("%s-%03d.png", prefix, page),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("pdftoppm %s p%d: rendered file not found among %v", path, page, candidates)
}
