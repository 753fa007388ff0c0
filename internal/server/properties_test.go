package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetPortKeepsOtherLines(t *testing.T) {
	dir := t.TempDir()
	original := "#Minecraft server properties\nmotd=hello\nserver-port=25565\nmax-players=20\n"
	if err := os.WriteFile(filepath.Join(dir, "server.properties"), []byte(original), 0644); err != nil {
		t.Fatal(err)
	}

	if err := SetPort(dir, 25570); err != nil {
		t.Fatalf("SetPort failed: %v", err)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "server.properties"))
	want := "#Minecraft server properties\nmotd=hello\nserver-port=25570\nmax-players=20\n"
	if string(data) != want {
		t.Errorf("Expected %q, got %q", want, string(data))
	}
}

func TestSetPortCreatesFile(t *testing.T) {
	dir := t.TempDir()

	if err := SetPort(dir, 25566); err != nil {
		t.Fatalf("SetPort failed: %v", err)
	}

	props, err := ReadProperties(dir)
	if err != nil {
		t.Fatalf("ReadProperties failed: %v", err)
	}
	if props["server-port"] != "25566" {
		t.Errorf("Expected server-port=25566, got %q", props["server-port"])
	}
}
