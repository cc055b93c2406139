// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package figma exposes the remote design tool's commands as MCP tools.
// Every tool is a thin pass-through: arguments are forwarded to the relay
// client untouched, and the resolved result (or the propagated error) is
// surfaced as text. Command semantics live in the plugin, not here.
package figma

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/GoBeromsu/claude-talk-to-figma-mcp/pkg/client"
)

// Register adds the Figma tools to an MCP server, wired to the given relay
// client.
func Register(s *server.MCPServer, c *client.Client) {
	joinChannelTool := mcp.NewTool("join_channel",
		mcp.WithDescription("Join a relay channel to talk to a Figma plugin. Without a channel name, joins the only available channel."),
		mcp.WithString("channel",
			mcp.Description("Channel name to join. Leave empty to auto-detect."),
		),
	)
	s.AddTool(joinChannelTool, joinChannelHandler(c))

	getDocumentInfoTool := mcp.NewTool("get_document_info",
		mcp.WithDescription("Get information about the current Figma document."),
	)
	s.AddTool(getDocumentInfoTool, passthrough(c, "get_document_info"))

	getSelectionTool := mcp.NewTool("get_selection",
		mcp.WithDescription("Get information about the current selection in Figma."),
	)
	s.AddTool(getSelectionTool, passthrough(c, "get_selection"))

	createRectangleTool := mcp.NewTool("create_rectangle",
		mcp.WithDescription("Create a rectangle in Figma."),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("X position.")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Y position.")),
		mcp.WithNumber("width", mcp.Required(), mcp.Description("Width in pixels.")),
		mcp.WithNumber("height", mcp.Required(), mcp.Description("Height in pixels.")),
		mcp.WithString("name", mcp.Description("Optional name for the node.")),
		mcp.WithString("parentId", mcp.Description("Optional parent node id.")),
	)
	s.AddTool(createRectangleTool, passthrough(c, "create_rectangle"))

	createFrameTool := mcp.NewTool("create_frame",
		mcp.WithDescription("Create a frame in Figma."),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("X position.")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Y position.")),
		mcp.WithNumber("width", mcp.Required(), mcp.Description("Width in pixels.")),
		mcp.WithNumber("height", mcp.Required(), mcp.Description("Height in pixels.")),
		mcp.WithString("name", mcp.Description("Optional name for the frame.")),
		mcp.WithString("parentId", mcp.Description("Optional parent node id.")),
	)
	s.AddTool(createFrameTool, passthrough(c, "create_frame"))

	createTextTool := mcp.NewTool("create_text",
		mcp.WithDescription("Create a text node in Figma."),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("X position.")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Y position.")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text content.")),
		mcp.WithNumber("fontSize", mcp.Description("Font size (default 14).")),
		mcp.WithString("parentId", mcp.Description("Optional parent node id.")),
	)
	s.AddTool(createTextTool, passthrough(c, "create_text"))

	setFillColorTool := mcp.NewTool("set_fill_color",
		mcp.WithDescription("Set the fill color of a node in Figma."),
		mcp.WithString("nodeId", mcp.Required(), mcp.Description("Id of the node to modify.")),
		mcp.WithNumber("r", mcp.Required(), mcp.Description("Red component (0-1).")),
		mcp.WithNumber("g", mcp.Required(), mcp.Description("Green component (0-1).")),
		mcp.WithNumber("b", mcp.Required(), mcp.Description("Blue component (0-1).")),
		mcp.WithNumber("a", mcp.Description("Alpha component (0-1).")),
	)
	s.AddTool(setFillColorTool, passthrough(c, "set_fill_color"))

	moveNodeTool := mcp.NewTool("move_node",
		mcp.WithDescription("Move a node to a new position in Figma."),
		mcp.WithString("nodeId", mcp.Required(), mcp.Description("Id of the node to move.")),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("New X position.")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("New Y position.")),
	)
	s.AddTool(moveNodeTool, passthrough(c, "move_node"))

	resizeNodeTool := mcp.NewTool("resize_node",
		mcp.WithDescription("Resize a node in Figma."),
		mcp.WithString("nodeId", mcp.Required(), mcp.Description("Id of the node to resize.")),
		mcp.WithNumber("width", mcp.Required(), mcp.Description("New width in pixels.")),
		mcp.WithNumber("height", mcp.Required(), mcp.Description("New height in pixels.")),
	)
	s.AddTool(resizeNodeTool, passthrough(c, "resize_node"))

	deleteNodeTool := mcp.NewTool("delete_node",
		mcp.WithDescription("Delete a node from the Figma document."),
		mcp.WithString("nodeId", mcp.Required(), mcp.Description("Id of the node to delete.")),
	)
	s.AddTool(deleteNodeTool, passthrough(c, "delete_node"))

	setTextContentTool := mcp.NewTool("set_text_content",
		mcp.WithDescription("Replace the text content of a text node in Figma."),
		mcp.WithString("nodeId", mcp.Required(), mcp.Description("Id of the text node.")),
		mcp.WithString("text", mcp.Required(), mcp.Description("New text content.")),
	)
	s.AddTool(setTextContentTool, passthrough(c, "set_text_content"))

	exportNodeTool := mcp.NewTool("export_node_as_image",
		mcp.WithDescription("Export a node as an image. Large exports report progress while running."),
		mcp.WithString("nodeId", mcp.Required(), mcp.Description("Id of the node to export.")),
		mcp.WithString("format", mcp.Description("Export format: PNG, JPG, SVG or PDF (default PNG).")),
		mcp.WithNumber("scale", mcp.Description("Export scale (default 1).")),
	)
	s.AddTool(exportNodeTool, passthrough(c, "export_node_as_image"))
}

// passthrough forwards a tool call's arguments as a command and renders the
// raw JSON result as text.
func passthrough(c *client.Client, command string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params, _ := request.Params.Arguments.(map[string]interface{})
		result, err := c.SendCommand(ctx, command, params, 0)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(result)), nil
	}
}

func joinChannelHandler(c *client.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := request.GetString("channel", "")
		if name == "" {
			joined, err := c.AutoConnect(ctx)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			return mcp.NewToolResultText("Joined channel: " + joined), nil
		}

		if err := c.JoinChannel(ctx, name); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("Joined channel: " + name), nil
	}
}
