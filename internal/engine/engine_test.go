package engine

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildArgs_Empty(t *testing.T) {
	require.Empty(t, BuildArgs(Options{}))
}

func TestBuildArgs_AllToggles(t *testing.T) {
	args := BuildArgs(Options{
		Seed:      "1,2,3,4",
		Verbose:   true,
		NoCatch:   true,
		KeepAlive: true,
		Replay:    true,
		ExtraArgs: []string{"--format", "gen9ou"},
	})

	require.Equal(t, []string{
		"--seed=1,2,3,4",
		"--verbose",
		"--no-catch",
		"--keep-alive",
		"--replay",
		"--format", "gen9ou",
	}, args)
}

func TestBuildArgs_ExtraArgsComeLast(t *testing.T) {
	args := BuildArgs(Options{Seed: "1", ExtraArgs: []string{"--x"}})
	require.Equal(t, "--x", args[len(args)-1])
}

// mockEngine writes a shell script that echoes each stdin line back
// prefixed with "echo:", then prints "done" at EOF.
func mockEngine(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine")
	script := `#!/bin/sh
while IFS= read -r line; do
	printf 'echo:%s\n' "$line"
done
printf 'done\n'
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestStart_DuplexRoundTrip(t *testing.T) {
	eng, err := Start(Options{Path: mockEngine(t)})
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	require.NotZero(t, eng.PID())

	_, err = fmt.Fprintln(eng.Stdin(), ">start")
	require.NoError(t, err)

	reader := bufio.NewReader(eng.Stdout())
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "echo:>start\n", line)

	require.NoError(t, eng.EndInput())

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "done\n", line)

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Empty(t, rest)

	require.NoError(t, eng.Wait())
}

func TestStart_MissingBinary(t *testing.T) {
	_, err := Start(Options{Path: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

func TestClose_TerminatesStuckEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine")
	// Ignores stdin EOF and sleeps forever; Close must still reap it.
	script := "#!/bin/sh\nsleep 600\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	eng, err := Start(Options{Path: path})
	require.NoError(t, err)

	require.NoError(t, eng.Close())
}
