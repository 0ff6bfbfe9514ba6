package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/stickerjar/internal/db"
	"github.com/hpungsan/stickerjar/internal/errors"
	"github.com/hpungsan/stickerjar/internal/geom"
	"github.com/hpungsan/stickerjar/internal/jar"
	"github.com/hpungsan/stickerjar/internal/ops"
	"github.com/hpungsan/stickerjar/internal/physics"
	"github.com/hpungsan/stickerjar/internal/sticker"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	jar   *jar.Jar
	store *db.Store
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(j *jar.Jar, store *db.Store) *Handlers {
	return &Handlers{jar: j, store: store}
}

// Request types for each tool

// StickerCreateRequest represents the arguments for sticker_create.
type StickerCreateRequest struct {
	ImageBase64    string `json:"image_base64"`
	OriginalBase64 string `json:"original_base64,omitempty"`
	IsSpecial      *bool  `json:"is_special,omitempty"`
}

// StickerFetchRequest represents the arguments for sticker_fetch.
type StickerFetchRequest struct {
	ID          string `json:"id"`
	IncludeText *bool  `json:"include_text,omitempty"`
}

// ListRequest represents the arguments for sticker_list and jar_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// JarCheckRequest represents the arguments for jar_check.
type JarCheckRequest struct {
	Foreground bool `json:"foreground,omitempty"`
}

// JarFetchRequest represents the arguments for jar_fetch.
type JarFetchRequest struct {
	ID              string `json:"id"`
	IncludeStickers *bool  `json:"include_stickers,omitempty"`
	IncludeReport   *bool  `json:"include_report,omitempty"`
}

// Output types

// JarCheckOutput is the jar_check result. Archived is set when the check
// archived the jar.
type JarCheckOutput struct {
	Status   ops.StatusOutput    `json:"status"`
	Archived *sticker.JarSummary `json:"archived,omitempty"`
}

// JarArchiveOutput is the jar_archive result.
type JarArchiveOutput struct {
	sticker.JarSummary
	Report *string `json:"report,omitempty"`
}

// JarBodiesOutput is the jar_bodies result.
type JarBodiesOutput struct {
	Width  float64             `json:"width"`
	Height float64             `json:"height"`
	Drop   geom.Vec            `json:"drop"`
	Bodies []physics.BodyState `json:"bodies"`
}

// Handler implementations

// HandleStickerCreate handles the sticker_create tool call.
func (h *Handlers) HandleStickerCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StickerCreateRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	image, err := decodeImage("image_base64", input.ImageBase64)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if len(image) == 0 {
		return errorResult(errors.NewInvalidRequest("image_base64 is required")), nil
	}
	original, err := decodeImage("original_base64", input.OriginalBase64)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.jar.CreateSticker(ctx, jar.CreateInput{
		Image:     image,
		Original:  original,
		IsSpecial: input.IsSpecial,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStickerFetch handles the sticker_fetch tool call.
func (h *Handlers) HandleStickerFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StickerFetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchSticker(ctx, h.store, ops.FetchStickerInput{
		ID:          input.ID,
		IncludeText: input.IncludeText,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleStickerList handles the sticker_list tool call.
func (h *Handlers) HandleStickerList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListStickers(ctx, h.store, ops.ListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleJarCheck handles the jar_check tool call.
func (h *Handlers) HandleJarCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JarCheckRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var out JarCheckOutput
	if input.Foreground {
		rec, err := h.jar.Foreground(ctx)
		if err != nil {
			return errorResult(err), nil
		}
		if rec != nil {
			summary := rec.ToSummary()
			out.Archived = &summary
		}
	}
	out.Status = ops.Status(h.jar)

	return successResult(out)
}

// HandleJarArchive handles the jar_archive tool call.
func (h *Handlers) HandleJarArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rec, err := h.jar.Archive(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(JarArchiveOutput{
		JarSummary: rec.ToSummary(),
		Report:     rec.Report,
	})
}

// HandleJarList handles the jar_list tool call.
func (h *Handlers) HandleJarList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListJars(ctx, h.store, ops.ListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleJarFetch handles the jar_fetch tool call.
func (h *Handlers) HandleJarFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[JarFetchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchJar(ctx, h.store, ops.FetchJarInput{
		ID:              input.ID,
		IncludeStickers: input.IncludeStickers,
		IncludeReport:   input.IncludeReport,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleJarBodies handles the jar_bodies tool call.
func (h *Handlers) HandleJarBodies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := JarBodiesOutput{Bodies: h.jar.Bodies()}
	if c, ok := h.jar.World().Boundary(); ok {
		out.Width, out.Height, out.Drop = c.Width, c.Height, c.Drop
	}
	if out.Bodies == nil {
		out.Bodies = []physics.BodyState{}
	}
	return successResult(out)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var jarErr *errors.JarError
	if stderrors.As(err, &jarErr) {
		// Wrapped errors keep their wrapper context in the message.
		msg := jarErr.Message
		if err != error(jarErr) {
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    jarErr.Code,
			"message": msg,
			"status":  jarErr.Status,
		}
		if jarErr.Code == errors.ErrInternal {
			errorObj["message"] = "an internal error occurred"
		} else if jarErr.Details != nil {
			errorObj["details"] = jarErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
