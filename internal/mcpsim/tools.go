package mcpsim

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

//go:embed reports/*.tmpl
var reportFS embed.FS

var reports = template.Must(template.ParseFS(reportFS, "reports/*.tmpl"))

type toolDef struct {
	name string
	tool mcp.Tool
}

var tools = []toolDef{
	{"list_funcs", mcp.NewTool("list_funcs",
		mcp.WithDescription("列出程序中的所有函數"),
		mcp.WithString("file_path", mcp.Description("文件路徑")),
	)},
	{"decompile", mcp.NewTool("decompile",
		mcp.WithDescription("反編譯指定的函數"),
		mcp.WithString("address", mcp.Description("函數地址")),
		mcp.WithString("function_name", mcp.Description("函數名稱")),
	)},
	{"disasm", mcp.NewTool("disasm",
		mcp.WithDescription("反彙編指定的函數或地址"),
		mcp.WithString("address", mcp.Description("開始地址")),
		mcp.WithNumber("length", mcp.Description("指令數量")),
	)},
	{"xrefs_to", mcp.NewTool("xrefs_to",
		mcp.WithDescription("查找對指定地址的交叉引用"),
		mcp.WithString("address", mcp.Description("目標地址")),
	)},
	{"strings", mcp.NewTool("strings",
		mcp.WithDescription("提取程序中的字符串"),
		mcp.WithNumber("min_length", mcp.Description("最小字符串長度")),
	)},
}

// reportData is what the report templates see.
type reportData struct {
	Time         string
	FilePath     string
	Address      string
	FunctionName string
	Length       int
	MinLength    int
}

// report returns the handler for the named tool.
func (s *Server) report(name string) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data := reportData{
			Time:         s.now().Format("2006-01-02 15:04:05"),
			FilePath:     req.GetString("file_path", "unknown"),
			Address:      req.GetString("address", "0x00401000"),
			FunctionName: req.GetString("function_name", "main"),
			Length:       req.GetInt("length", 10),
			MinLength:    req.GetInt("min_length", 4),
		}
		var b strings.Builder
		if err := reports.ExecuteTemplate(&b, name+".tmpl", data); err != nil {
			return nil, fmt.Errorf("render %s report: %w", name, err)
		}
		s.log.Debug("tool call", "tool", name)
		return mcp.NewToolResultText(b.String()), nil
	}
}
