package mcp

import "github.com/mark3labs/mcp-go/mcp"

var stickerCreateToolDef = mcp.NewTool("sticker_create",
	mcp.WithDescription("Create a sticker from a cut-out PNG and drop it into the jar. Blocks until the image is stored; analysis falls back to placeholder text when it fails. May trigger an archive when the jar overflows."),
	mcp.WithString("image_base64", mcp.Required(), mcp.Description("Base64 encoded sticker image (PNG or JPEG)")),
	mcp.WithString("original_base64", mcp.Description("Base64 encoded source photo the sticker was cut from")),
	mcp.WithBoolean("is_special", mcp.Description("Force the special flag instead of the configured random roll")),
)

var stickerFetchToolDef = mcp.NewTool("sticker_fetch",
	mcp.WithDescription("Fetch one live sticker by id."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Sticker ULID")),
	mcp.WithBoolean("include_text", mcp.Description("Include fun fact and nutrition text (default true)")),
)

var stickerListToolDef = mcp.NewTool("sticker_list",
	mcp.WithDescription("List stickers in the live jar, oldest first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var jarCheckToolDef = mcp.NewTool("jar_check",
	mcp.WithDescription("Report jar size and archive triggers. With foreground=true, evaluates the triggers as if the app became active and archives when one holds."),
	mcp.WithBoolean("foreground", mcp.Description("Run the archive check (default false)")),
)

var jarArchiveToolDef = mcp.NewTool("jar_archive",
	mcp.WithDescription("Archive the live jar now, regardless of triggers."),
)

var jarListToolDef = mcp.NewTool("jar_list",
	mcp.WithDescription("List archived jars on the shelf, newest first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
)

var jarFetchToolDef = mcp.NewTool("jar_fetch",
	mcp.WithDescription("Fetch an archived jar with its report and stickers."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Jar ULID")),
	mcp.WithBoolean("include_stickers", mcp.Description("Include the embedded stickers (default true)")),
	mcp.WithBoolean("include_report", mcp.Description("Include the report markdown (default true)")),
)

var jarBodiesToolDef = mcp.NewTool("jar_bodies",
	mcp.WithDescription("Current physics layout: container size and every body's position and velocity."),
)
