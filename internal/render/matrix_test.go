package render_test

import (
	"testing"

	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/compositor"
	"github.com/bryanchriswhite/xdg-portal-wayfar/internal/render"
)

func TestIdentityMultiplyIsNoOp(t *testing.T) {
	m := render.Identity()
	got := m.Multiply(render.Identity())
	if got != render.Identity() {
		t.Errorf("Identity * Identity = %v, want identity", got)
	}
}

func TestTranslateSetsTranslationComponents(t *testing.T) {
	m := render.Identity().Translate(-0.5, -0.5)
	if m[6] != -0.5 || m[7] != -0.5 {
		t.Errorf("Translate did not set mat[6]/mat[7]: got %v", m)
	}
}

func TestScaleSetsDiagonal(t *testing.T) {
	m := render.Identity().Scale(2, 2)
	if m[0] != 2 || m[4] != 2 {
		t.Errorf("Scale did not set mat[0]/mat[4]: got %v", m)
	}
}

func TestTransformNormalIsIdentityMultiplication(t *testing.T) {
	base := render.Identity().Translate(-0.5, -0.5).Scale(2, 2)
	got := base.Transform(compositor.TransformNormal)
	if got != base {
		t.Errorf("Transform(Normal) changed the matrix: got %v, want %v", got, base)
	}
}

func Test90And270ShareTheSameMatrix(t *testing.T) {
	m90 := render.Identity().Transform(compositor.Transform90)
	m270 := render.Identity().Transform(compositor.Transform270)
	if m90 != m270 {
		t.Errorf("Transform(90) = %v, Transform(270) = %v, want equal", m90, m270)
	}
}

func TestUnknownTransformFallsBackToIdentity(t *testing.T) {
	base := render.Identity().Translate(1, 2)
	got := base.Transform(compositor.Transform(99))
	if got != base {
		t.Errorf("Transform(unknown) = %v, want unchanged base %v", got, base)
	}
}

func TestProjectionMatrixOrder(t *testing.T) {
	want := render.Identity().Translate(-0.5, -0.5).Scale(2, 2).Transform(compositor.TransformFlipped)
	got := render.ProjectionMatrix(compositor.TransformFlipped)
	if got != want {
		t.Errorf("ProjectionMatrix(Flipped) = %v, want %v", got, want)
	}
}
