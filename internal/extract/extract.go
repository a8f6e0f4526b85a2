// Package extract 把上传的简历文档（pdf / docx）转换为纯文本。
//
// 文档全程只在内存中处理，不落盘。
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"cvinsight/internal/analysis"
)

// Format 是支持的文档格式。
type Format string

const (
	FormatUnknown Format = ""
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
)

const docxBodyPart = "word/document.xml"

// Extract 根据文件扩展名（缺失时根据文件头）选择解析器，返回去除首尾空白后的文本。
func Extract(data []byte, filename string) (string, error) {
	format := Detect(data, filename)

	var (
		text string
		err  error
	)
	switch format {
	case FormatPDF:
		text, err = extractPDF(data)
	case FormatDOCX:
		text, err = extractDOCX(data)
	default:
		return "", analysis.UnsupportedFormat("unsupported document %q (head=%x)", filename, head(data, 8))
	}
	if err != nil {
		return "", analysis.ExtractionFailed(err, "extract %s text from %q", format, filename)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", analysis.ExtractionFailed(nil, "no text found in %s document %q", format, filename)
	}
	return text, nil
}

// Detect 判断文档格式：优先扩展名，其次前 8 字节的魔数。
func Detect(data []byte, filename string) Format {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(filename))) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	}

	sig := head(data, 8)
	switch {
	case bytes.HasPrefix(sig, []byte("%PDF")):
		return FormatPDF
	case bytes.HasPrefix(sig, []byte("PK\x03\x04")):
		return FormatDOCX
	default:
		return FormatUnknown
	}
}

func head(data []byte, n int) []byte {
	if len(data) < n {
		return data
	}
	return data[:n]
}

// extractPDF 逐页提取文本，页与页之间以单个换行分隔。
func extractPDF(data []byte) (text string, err error) {
	// ledongthuc/pdf 在遇到损坏的对象时会 panic。
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		pages = append(pages, content)
	}
	return strings.Join(pages, "\n"), nil
}

// extractDOCX 读取 word/document.xml，按段落（w:p）收集 w:t 文本。
func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx container: %w", err)
	}

	var body *zip.File
	for _, f := range zr.File {
		if f.Name == docxBodyPart {
			body = f
			break
		}
	}
	if body == nil {
		return "", fmt.Errorf("docx container has no %s", docxBodyPart)
	}

	rc, err := body.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", docxBodyPart, err)
	}
	defer rc.Close()

	paragraphs, err := docxParagraphs(rc)
	if err != nil {
		return "", err
	}
	return strings.Join(paragraphs, "\n"), nil
}

// docxParagraphs 按 w:p 的结束顺序返回段落文本。
// 文本框（w:txbxContent）里的段落嵌套在外层段落中，因此用栈保存未闭合的段落；
// mc:Fallback 是同一文本框的 VML 副本，整体跳过以免重复。
func docxParagraphs(r io.Reader) ([]string, error) {
	decoder := xml.NewDecoder(r)

	var (
		paragraphs []string
		open       []*strings.Builder
		inText     bool
		skipDepth  int
	)
	top := func() *strings.Builder {
		if len(open) == 0 {
			return nil
		}
		return open[len(open)-1]
	}
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", docxBodyPart, err)
		}

		if skipDepth > 0 {
			switch tok.(type) {
			case xml.StartElement:
				skipDepth++
			case xml.EndElement:
				skipDepth--
			}
			continue
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "Fallback":
				skipDepth = 1
			case "p":
				open = append(open, &strings.Builder{})
			case "t":
				inText = true
			case "tab":
				if b := top(); b != nil {
					b.WriteByte('\t')
				}
			case "br", "cr":
				if b := top(); b != nil {
					b.WriteByte('\n')
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				if b := top(); b != nil {
					paragraphs = append(paragraphs, b.String())
					open = open[:len(open)-1]
				}
			}
		case xml.CharData:
			if b := top(); inText && b != nil {
				b.Write(el)
			}
		}
	}
	return paragraphs, nil
}
