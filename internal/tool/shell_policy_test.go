package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/syntax"
)

func parse(t *testing.T, src string) *syntax.File {
	t.Helper()
	prog, err := syntax.NewParser().Parse(strings.NewReader(src), "")
	require.NoError(t, err)
	return prog
}

func TestParseShellCommands(t *testing.T) {
	cmds := parseShellCommands(parse(t, `ls -la "My Files" | grep "$PATTERN" && echo $(date)`))
	require.Len(t, cmds, 4)
	assert.Equal(t, "ls", cmds[0].Name)
	assert.Equal(t, []string{"-la", "My Files"}, cmds[0].Args)
	assert.Equal(t, "My Files", cmds[0].Subcommand)
	assert.Equal(t, "grep", cmds[1].Name)
	assert.Equal(t, []string{"$PATTERN"}, cmds[1].Args)
	assert.Equal(t, "echo", cmds[2].Name)
	assert.Equal(t, "date", cmds[3].Name)
}

func TestShellPolicy_Defaults(t *testing.T) {
	cases := []struct {
		cmd     string
		allowed bool
	}{
		{"echo hello", true},
		{"open -a Safari", true},
		{"rm notes.txt", true},
		{"rm -rf /", false},
		{"sudo ls", false},
		{"echo hi; shutdown -h now", false},
		{"mkfs.ext4 /dev/sda1", false},
		{"echo $(reboot)", false},
	}
	for _, c := range cases {
		err := DefaultShellPolicy.Check(parse(t, c.cmd))
		if c.allowed {
			assert.NoError(t, err, c.cmd)
		} else {
			assert.ErrorContains(t, err, "command not allowed", c.cmd)
		}
	}
}

func TestMergeShellPolicy(t *testing.T) {
	p, err := MergeShellPolicy(map[string]string{
		"sudo":        "allow",
		"git push *":  "deny",
		"curl":        "deny",
		"osascript *": "allow",
	})
	require.NoError(t, err)

	assert.NoError(t, p.Check(parse(t, "sudo ls")))
	assert.NoError(t, p.Check(parse(t, "git status")))
	assert.Error(t, p.Check(parse(t, "git push origin main")))
	assert.Error(t, p.Check(parse(t, "curl example.com")))
	assert.Error(t, p.Check(parse(t, "reboot")))
	assert.Len(t, DefaultShellPolicy, 9, "defaults are not modified")

	_, err = MergeShellPolicy(map[string]string{"ls": "maybe"})
	assert.ErrorContains(t, err, "unknown action")
}

func TestShellTool_RefusesDenied(t *testing.T) {
	sh := NewShellTool(t.TempDir(), ShellPolicy{"echo": ShellDeny})
	_, err := sh.Execute(context.Background(), json.RawMessage(`{"command": "true && echo hi"}`), nil)
	assert.EqualError(t, err, "command not allowed: echo hi")
}
