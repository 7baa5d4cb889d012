// Package mcp connects deskpilot to external Model Context Protocol servers
// using the official MCP Go SDK and registers their tools next to the
// built-in desktop tools.
//
// Servers come from the "mcp" section of the config:
//
//	{
//	  "mcp": {
//	    "home": {"type": "local", "command": ["deskpilot-tools-mcp"]},
//	    "lights": {"type": "remote", "url": "http://localhost:9000/mcp"}
//	  }
//	}
//
// Local servers are started as subprocesses and spoken to over stdio.
// Remote servers are tried with the streamable HTTP transport first and
// SSE second. Tools are exposed as "<server>_<tool>" with non-alphanumeric
// characters replaced by underscores.
//
//	client := mcp.NewClient()
//	defer client.Close()
//	client.ConnectAll(ctx, cfg.MCP)
//	mcp.RegisterTools(client, registry)
package mcp
