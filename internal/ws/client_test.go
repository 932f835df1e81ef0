package ws

import "testing"

func TestDeskIDFromPath(t *testing.T) {
	cases := []struct {
		path    string
		want    int64
		wantErr bool
	}{
		{"/ws/desk/7", 7, false},
		{"/ws/desk/123456", 123456, false},
		{"/ws/desk/7/", 7, false},
		{"/ws/desk/0", 0, false},
		{"/ws/desk/", 0, true},
		{"/ws/desk/abc", 0, true},
		{"/ws/desk/7abc", 0, true},
		{"/", 0, true},
		{"", 0, true},
	}

	for _, tc := range cases {
		got, err := DeskIDFromPath(tc.path)
		if tc.wantErr {
			if err == nil {
				t.Errorf("DeskIDFromPath(%q): expected error, got %d", tc.path, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("DeskIDFromPath(%q): unexpected error: %v", tc.path, err)
			continue
		}
		if got != tc.want {
			t.Errorf("DeskIDFromPath(%q) = %d, expected %d", tc.path, got, tc.want)
		}
	}
}
