package portal

import "testing"

func TestClampFramerate(t *testing.T) {
	cases := []struct {
		refresh, maxFPS, want int
	}{
		{60, 0, 60},
		{144, 60, 60},
		{30, 60, 30},
		{0, 30, 30},
	}
	for _, c := range cases {
		if got := clampFramerate(c.refresh, c.maxFPS); got != c.want {
			t.Errorf("clampFramerate(%d, %d) = %d, want %d", c.refresh, c.maxFPS, got, c.want)
		}
	}
}
