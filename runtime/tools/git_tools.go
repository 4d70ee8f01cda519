package tools

// Git plumbing tools wrap the real `git` binary via os/exec (justified
// stdlib use, SPEC_FULL.md §2.3/§4.1: no pack example vendors an in-process
// git implementation such as go-git; every pack repo's git-adjacent tooling
// shells out to the real binary).

func NewGitStatusTool(workDir string) Tool {
	return execTool{
		name: "git_status", category: CategoryGit, workDir: workDir,
		schema:    `{"$schema": "https://json-schema.org/draft/2020-12/schema", "type": "object", "additionalProperties": true}`,
		program:   func(map[string]any) string { return "git" },
		buildArgs: func(map[string]any) []string { return []string{"status", "--porcelain=v1"} },
	}
}

func NewGitDiffTool(workDir string) Tool {
	return execTool{
		name: "git_diff", category: CategoryGit, workDir: workDir,
		schema: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {"path": {"type": "string"}},
  "additionalProperties": true
}`,
		program: func(map[string]any) string { return "git" },
		buildArgs: func(params map[string]any) []string {
			args := []string{"diff"}
			if p, ok := params["path"].(string); ok && p != "" {
				args = append(args, "--", p)
			}
			return args
		},
	}
}

func NewGitLogTool(workDir string) Tool {
	return execTool{
		name: "git_log", category: CategoryGit, workDir: workDir,
		schema: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {"max_count": {"type": "integer", "default": 20}},
  "additionalProperties": true
}`,
		program: func(map[string]any) string { return "git" },
		buildArgs: func(params map[string]any) []string {
			n := 20
			if v, ok := params["max_count"].(float64); ok {
				n = int(v)
			}
			return []string{"log", "--oneline", "-n", itoa(n)}
		},
	}
}

func NewGitBranchTool(workDir string) Tool {
	return execTool{
		name: "git_branch", category: CategoryGit, workDir: workDir,
		schema:    `{"$schema": "https://json-schema.org/draft/2020-12/schema", "type": "object", "additionalProperties": true}`,
		program:   func(map[string]any) string { return "git" },
		buildArgs: func(map[string]any) []string { return []string{"branch", "--list"} },
	}
}

func NewGitCommitTool(workDir string) Tool {
	return execTool{
		name: "git_commit", category: CategoryGit, workDir: workDir,
		schema: `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {"message": {"type": "string"}},
  "required": ["message"],
  "additionalProperties": true
}`,
		program: func(map[string]any) string { return "git" },
		buildArgs: func(params map[string]any) []string {
			msg, _ := params["message"].(string)
			return []string{"commit", "-am", msg}
		},
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
