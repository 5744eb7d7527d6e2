package infra

// pdf.go renders the customer ticket of a sale with go-pdf/fpdf on a narrow
// receipt-sized page. Only the snapshot columns of the sale are read, so a
// reprint matches the original even after catalog edits or product deletion.
// Voided sales carry an ANULADA banner and are written to a separate file.

import (
	"fmt"
	"os"
	"path/filepath"

	"pipos/internal/model"

	"github.com/go-pdf/fpdf"
)

// TicketFileName is the file the ticket of v is written to inside the
// storage directory.
func TicketFileName(v *model.Venta) string {
	if v.Anulada() {
		return fmt.Sprintf("ticket_%s_anulada.pdf", v.NumeroVenta)
	}
	return fmt.Sprintf("ticket_%s.pdf", v.NumeroVenta)
}

// GenerateTicketPDF writes the ticket of venta under storagePath (created if
// needed) and returns the file path. venta.Detalles must be loaded.
func GenerateTicketPDF(venta *model.Venta, negocio, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0o755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}
	filePath := filepath.Join(storagePath, TicketFileName(venta))

	alto := 70.0 + 5.0*float64(len(venta.Detalles))
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 74, Ht: alto},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.SetAutoPageBreak(false, 4)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(contentW, 7, tr(negocio), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, "Ticket de venta", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(contentW, 5, "Venta "+venta.NumeroVenta, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, venta.CreatedAt.Format("02/01/2006  15:04"), "", 1, "L", false, 0, "")
	if venta.Anulada() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetTextColor(200, 0, 0)
		pdf.CellFormat(contentW, 6, "ANULADA", "1", 1, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}
	pdf.Ln(2)

	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	col1 := contentW * 0.52
	col2 := contentW * 0.16
	col3 := contentW * 0.32

	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(col1, 5, "Producto", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Cant", "B", 0, "C", false, 0, "")
	pdf.CellFormat(col3, 5, "Importe", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	for _, d := range venta.Detalles {
		pdf.CellFormat(col1, 5, tr(truncar(d.NombreProducto, 22)), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, fmt.Sprintf("x%d", d.Cantidad), "", 0, "C", false, 0, "")
		pdf.CellFormat(col3, 5, "$"+d.TotalLinea.StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	fila := func(label, valor string) {
		pdf.CellFormat(col1+col2, 5, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 5, valor, "", 1, "R", false, 0, "")
	}
	pdf.SetFont("Helvetica", "", 7)
	fila("Subtotal:", "$"+venta.Subtotal.StringFixed(2))
	if !venta.Descuento.IsZero() {
		fila("Descuento:", "-$"+venta.Descuento.StringFixed(2))
	}
	if !venta.Impuesto.IsZero() {
		fila("Impuesto:", "$"+venta.Impuesto.StringFixed(2))
	}

	pdf.SetFont("Helvetica", "B", 9)
	fila("TOTAL:", "$"+venta.Total.StringFixed(2))

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 7)
	fila(tr("Pago ("+venta.MetodoPago+"):"), "$"+venta.MontoPagado.StringFixed(2))
	if !venta.Cambio.IsZero() {
		fila("Cambio:", "$"+venta.Cambio.StringFixed(2))
	}

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, tr("¡Gracias por su compra!"), "", 1, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}
	return filePath, nil
}

func truncar(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
