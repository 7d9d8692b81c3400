package ainews_test

import (
	"os"
	"strings"
	"testing"
)

func readFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

// composeService はdocker-compose.ymlから指定サービスの定義ブロックを切り出す。
// トップレベルのservices直下（インデント2）のキーをサービスの区切りとみなす。
func composeService(t *testing.T, compose, name string) string {
	t.Helper()

	var block []string
	in := false
	for _, line := range strings.Split(compose, "\n") {
		if strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "   ") && strings.HasSuffix(strings.TrimSpace(line), ":") {
			in = strings.TrimSpace(line) == name+":"
			continue
		}
		if line != "" && !strings.HasPrefix(line, " ") {
			in = false
		}
		if in {
			block = append(block, line)
		}
	}
	if len(block) == 0 {
		t.Fatalf("docker-compose.yml should define service %q", name)
	}
	return strings.Join(block, "\n")
}

func TestDockerfile(t *testing.T) {
	content := readFile(t, "Dockerfile")

	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}

	checks := []struct {
		name string
		ok   bool
	}{
		{"builder stage uses golang image", strings.Contains(content, "FROM golang:")},
		{"final stage is distroless", strings.Contains(lastFrom, "gcr.io/distroless")},
		{"binary is built from ./cmd/ainews", strings.Contains(content, "-o /out/ainews ./cmd/ainews")},
		{"entrypoint runs ainews", strings.Contains(content, `ENTRYPOINT ["/usr/local/bin/ainews"]`)},
		{"default subcommand is serve", strings.Contains(content, `CMD ["serve"]`)},
		// distrolessにはcurlがないため、healthcheckサブコマンドを使う
		{"healthcheck uses the subcommand", strings.Contains(content, `"healthcheck"]`)},
		{"runs as nonroot", strings.Contains(content, "USER nonroot")},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("Dockerfile: %s", c.name)
		}
	}
}

func TestDockerComposeSubcommands(t *testing.T) {
	compose := readFile(t, "docker-compose.yml")

	for svc, cmd := range map[string]string{
		"api":     `command: ["serve"]`,
		"worker":  `command: ["worker"]`,
		"migrate": `command: ["migrate"]`,
	} {
		if block := composeService(t, compose, svc); !strings.Contains(block, cmd) {
			t.Errorf("service %s should run %s", svc, cmd)
		}
	}

	if db := composeService(t, compose, "db"); !strings.Contains(db, "image: postgres:") {
		t.Error("db service should use the PostgreSQL image")
	}
	// ログイン試行回数をインスタンス間で共有する
	if api := composeService(t, compose, "api"); !strings.Contains(api, "REDIS_URL:") {
		t.Error("api service should be given REDIS_URL")
	}
}

// 外部へ出られるのはフィード取り込みを行うworkerのみであることを検証
func TestDockerComposeEgress(t *testing.T) {
	compose := readFile(t, "docker-compose.yml")

	if !strings.Contains(compose, "internal: true") {
		t.Fatal("docker-compose.yml should define an internal backend network")
	}

	for _, svc := range []string{"api", "worker", "migrate", "db", "redis"} {
		block := composeService(t, compose, svc)
		if !strings.Contains(block, "- backend") {
			t.Errorf("service %s should join the backend network", svc)
		}
		hasExternal := strings.Contains(block, "- external")
		if svc == "worker" && !hasExternal {
			t.Error("worker should join the external network to fetch feeds")
		}
		if svc != "worker" && hasExternal {
			t.Errorf("service %s should not join the external network", svc)
		}
	}
}
