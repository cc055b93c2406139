// This source code is governed by the MIT license, which can be found in the LICENSE file.

package main

import "github.com/GoBeromsu/claude-talk-to-figma-mcp/cmd/figma-mcp/commands"

func main() {
	commands.Execute()
}
