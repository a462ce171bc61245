package replay

import "scorched/domain"

// PositionAt は軌道上の指定時刻の位置を補間して返します。
//   - 点が1つ以下: その点（空ならゼロ値）を返す
//   - Impact点があり時刻がそれ以降: Impact位置へ正確にスナップする
//   - 4点以上あり前後の点が揃う区間: 軸ごとのCatmull-Rom補間
//   - それ以外: 区間の線形補間
//
// Impact点を持たない軌道で時刻が末尾を超えた場合は最終区間を線形に外挿します
// （飛行中消滅した発射体は最後の観測速度のまま進み続ける扱いになります）。
// 区間の時間幅が0の場合はt=0として扱い、除算エラーにはしません。
func PositionAt(traj *Trajectory, timeMs float64) domain.Vec3 {
	if traj == nil || len(traj.Points) == 0 {
		return domain.Vec3{}
	}
	points := traj.Points
	if len(points) == 1 {
		return points[0].Position
	}
	if impact, ok := traj.ImpactPoint(); ok && timeMs >= impact.Time {
		return impact.Position
	}

	// p1.Time <= timeMs < p2.Time となる区間を探す。末尾を超えたら最終区間。
	i1 := len(points) - 2
	for i := 0; i < len(points)-1; i++ {
		if timeMs < points[i+1].Time {
			i1 = i
			break
		}
	}
	p1 := points[i1]
	p2 := points[i1+1]

	span := p2.Time - p1.Time
	t := 0.0
	if span > 0 {
		t = (timeMs - p1.Time) / span
	}
	if t < 0 {
		t = 0
	}

	if len(points) >= 4 && i1 >= 1 && i1+2 < len(points) {
		p0 := points[i1-1]
		p3 := points[i1+2]
		return domain.Vec3{
			X: catmullRom(p0.Position.X, p1.Position.X, p2.Position.X, p3.Position.X, t),
			Y: catmullRom(p0.Position.Y, p1.Position.Y, p2.Position.Y, p3.Position.Y, t),
			Z: catmullRom(p0.Position.Z, p1.Position.Z, p2.Position.Z, p3.Position.Z, t),
		}
	}
	return p1.Position.Add(p2.Position.Sub(p1.Position).Scale(t))
}

func catmullRom(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * ((2 * p1) +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}
