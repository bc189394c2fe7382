package types

import "testing"

func TestSceneRecord_CloudCoverOrDefault(t *testing.T) {
	var s SceneRecord
	if got := s.CloudCoverOrDefault(100); got != 100 {
		t.Errorf("missing cloud cover: got %v, want 100", got)
	}
	cc := 12.5
	s.CloudCover = &cc
	if got := s.CloudCoverOrDefault(100); got != 12.5 {
		t.Errorf("reported cloud cover: got %v, want 12.5", got)
	}
}
