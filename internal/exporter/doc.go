// Package exporter reads and writes quantamental data frames as CSV and
// XLSX files and uploads exports to S3.
//
// CSVWriter resolves relative paths against the exports directory and
// supports streaming large frames. Frames use the long layout
// cid,xcat,real_date followed by the metric columns; wide matrices use a
// real_date column followed by one column per ticker.
//
// Example usage:
//
//	w := exporter.NewCSVWriter(paths)
//	err := w.ExportFrame("fx.csv", frame, []string{"value", "grading"})
//
//	f, err := exporter.ReadXLSX("fx.xlsx")
//
//	up, err := exporter.NewS3Uploader(ctx, exporter.S3Config{Bucket: "research"})
//	key, err := up.UploadFile(ctx, w.Path("fx.csv"))
package exporter
