package backend

import "testing"

func TestModelVarRegistration(t *testing.T) {
	m := NewModel()
	b := m.NewBool("x")
	i := m.NewInt("slack", 0, 5)

	if m.NumVars() != 2 {
		t.Fatalf("变量数 = %d, want 2", m.NumVars())
	}
	vars := m.Vars()
	if vars[b].Kind != VarBool || vars[b].Lb != 0 || vars[b].Ub != 1 {
		t.Errorf("0/1变量界不对: %+v", vars[b])
	}
	if vars[i].Kind != VarInt || vars[i].Ub != 5 {
		t.Errorf("整型变量界不对: %+v", vars[i])
	}
}

func TestNewIntSwapsInvertedBounds(t *testing.T) {
	m := NewModel()
	v := m.NewInt("odd", 3, 1)
	if ub := m.Vars()[v].Ub; ub != 3 {
		t.Errorf("ub<lb时上界应抬到下界: ub = %d, want 3", ub)
	}
}

func TestAddObjectiveSkipsZeroCoeff(t *testing.T) {
	m := NewModel()
	v := m.NewBool("x")
	m.AddObjectiveTerm(v, 0)
	m.AddObjectiveTerm(v, 1000)
	if len(m.Objective()) != 1 {
		t.Fatalf("零系数目标项应被忽略: %+v", m.Objective())
	}
	if m.Objective()[0].Coeff != 1000 {
		t.Errorf("目标系数 = %d, want 1000", m.Objective()[0].Coeff)
	}
}

func TestStatusUsable(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusOptimal, true},
		{StatusFeasible, true},
		{StatusInfeasible, false},
		{StatusTimeout, false},
		{StatusCancelled, false},
		{StatusError, false},
	}
	for _, tt := range tests {
		if got := tt.status.Usable(); got != tt.want {
			t.Errorf("%s.Usable() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestSolutionValueBounds(t *testing.T) {
	sol := &Solution{Values: []int64{1, 4}}
	if !sol.BoolValue(0) {
		t.Error("取值1的0/1变量应为true")
	}
	if sol.IntValue(1) != 4 {
		t.Errorf("整型取值 = %d, want 4", sol.IntValue(1))
	}
	// 越界读取不崩溃
	if sol.BoolValue(9) || sol.IntValue(9) != 0 {
		t.Error("越界变量应读到零值")
	}
}
