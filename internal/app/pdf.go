package app

import (
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "github.com/jung-kurt/gofpdf"
)

// writeResultsPDF renders a simple listing: a heading per source followed by
// its values. Absolute http(s) values become clickable links. Core fonts only
// cover cp1252, so text goes through the translator first.
func writeResultsPDF(results []Result, outPath string) error {
    if dir := filepath.Dir(outPath); dir != "." {
        if err := os.MkdirAll(dir, 0o755); err != nil {
            return err
        }
    }
    pdf := gofpdf.New("P", "mm", "A4", "")
    tr := pdf.UnicodeTranslatorFromDescriptor("")
    pdf.SetFont("Helvetica", "", 11)
    pdf.AddPage()

    for _, r := range results {
        pdf.SetFont("Helvetica", "B", 12)
        pdf.MultiCell(0, 7, tr(r.Source), "", "L", false)
        pdf.SetFont("Helvetica", "", 8)
        pdf.CellFormat(0, 5, fmt.Sprintf("sha256=%s; bytes=%d; values=%d", r.SHA256, r.Bytes, len(r.Values)), "", 1, "L", false, 0, "")
        pdf.SetFont("Helvetica", "", 11)
        for _, v := range r.Values {
            s := strings.TrimSpace(v)
            if s == "" {
                pdf.Ln(5)
                continue
            }
            if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
                pdf.WriteLinkString(5, tr(s), s)
                pdf.Ln(6)
                continue
            }
            pdf.MultiCell(0, 5, tr(s), "", "L", false)
        }
        pdf.Ln(4)
    }
    if pdf.Err() {
        return pdf.Error()
    }
    return pdf.OutputFileAndClose(outPath)
}
