package loader

import (
	"reflect"
	"testing"
)

func TestSortVersions(t *testing.T) {
	versions := []string{"1.8.8", "1.20", "1.20.1", "1.19.4"}
	SortVersions(versions)

	want := []string{"1.20.1", "1.20", "1.19.4", "1.8.8"}
	if !reflect.DeepEqual(versions, want) {
		t.Errorf("Expected %v, got %v", want, versions)
	}
}
