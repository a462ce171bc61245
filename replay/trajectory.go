package replay

import (
	"sort"

	"scorched/domain"
	"scorched/timeline"
)

// Point は軌道上の1ウェイポイントです。
type Point struct {
	Time     float64 // ms
	Position domain.Vec3
	Impact   bool
}

// Trajectory は1発射体の時刻順ウェイポイント列です。
// 構築後は差し替え以外で変更されず、その発射体のビジュアルオブジェクトが所有します。
type Trajectory struct {
	Points []Point

	impactIdx int // Impact点のインデックス。なければ-1
}

// BuildTrajectory はSpawn・Move・Impactイベントから軌道を組み立てます。
// Bounceイベントは位置サンプルとしては使いません（直後のMoveが経路を表す）。
// 対象イベントが1つもなければnilを返します。
func BuildTrajectory(events []timeline.Event) *Trajectory {
	points := make([]Point, 0, len(events))
	for _, ev := range events {
		switch ev.Kind {
		case timeline.KindSpawn, timeline.KindMove:
			points = append(points, Point{Time: ev.Time, Position: ev.Position})
		case timeline.KindImpact:
			points = append(points, Point{Time: ev.Time, Position: ev.Position, Impact: true})
		}
	}
	if len(points) == 0 {
		return nil
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time < points[j].Time
	})

	t := &Trajectory{Points: points, impactIdx: -1}
	for i := range points {
		if points[i].Impact {
			t.impactIdx = i
			break
		}
	}
	return t
}

// ImpactPoint はImpact点を返します。存在しなければokはfalseです。
func (t *Trajectory) ImpactPoint() (Point, bool) {
	if t.impactIdx < 0 {
		return Point{}, false
	}
	return t.Points[t.impactIdx], true
}
