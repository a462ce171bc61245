package terrain

import (
	"math"
	"sync"

	"scorched/domain"
)

// Heightfield はグリッド標高にCatmull-Rom補間をかけた地形実装です。
// ballistics.Terrainを実装し、任意のサブグリッド座標で滑らかな高さを返します。
// 着弾クレーターによる変形（Deform）はロックで直列化されます。
type Heightfield struct {
	mu      sync.RWMutex
	width   int     // X方向のノード数
	depth   int     // Z方向のノード数
	cell    float64 // ノード間隔（ワールドユニット）
	heights []float64
}

// NewFlat は一様な高さの地形を生成します。
func NewFlat(width, depth int, cell, height float64) *Heightfield {
	h := newHeightfield(width, depth, cell)
	for i := range h.heights {
		h.heights[i] = height
	}
	return h
}

// NewRollingHills は正弦波ベースのなだらかな丘陵地形を生成します。
// 乱数を使わないため、同一パラメータからは常に同一の地形が得られます。
func NewRollingHills(width, depth int, cell, amplitude, wavelength float64) *Heightfield {
	h := newHeightfield(width, depth, cell)
	for iz := 0; iz < depth; iz++ {
		for ix := 0; ix < width; ix++ {
			x := float64(ix) * cell
			z := float64(iz) * cell
			h.heights[iz*width+ix] = amplitude * (1 + math.Sin(x/wavelength)*math.Cos(z/wavelength))
		}
	}
	return h
}

func newHeightfield(width, depth int, cell float64) *Heightfield {
	if width < 4 {
		width = 4
	}
	if depth < 4 {
		depth = 4
	}
	if cell <= 0 {
		cell = 1
	}
	return &Heightfield{
		width:   width,
		depth:   depth,
		cell:    cell,
		heights: make([]float64, width*depth),
	}
}

// WorldWidth はX方向のワールドサイズを返します。
func (h *Heightfield) WorldWidth() float64 {
	return float64(h.width-1) * h.cell
}

// WorldDepth はZ方向のワールドサイズを返します。
func (h *Heightfield) WorldDepth() float64 {
	return float64(h.depth-1) * h.cell
}

// HeightAt は(x,z)における補間済みの地形高さを返します。
// グリッド外はエッジの値にクランプされます。
func (h *Heightfield) HeightAt(x, z float64) float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	gx := x / h.cell
	gz := z / h.cell
	ix := int(math.Floor(gx))
	iz := int(math.Floor(gz))
	fx := gx - float64(ix)
	fz := gz - float64(iz)

	// Z方向の4行それぞれをX方向に補間してからZ方向に補間する
	var rows [4]float64
	for r := 0; r < 4; r++ {
		rz := iz - 1 + r
		rows[r] = catmullRom(
			h.nodeAt(ix-1, rz),
			h.nodeAt(ix, rz),
			h.nodeAt(ix+1, rz),
			h.nodeAt(ix+2, rz),
			fx,
		)
	}
	return catmullRom(rows[0], rows[1], rows[2], rows[3], fz)
}

// Deform は着弾クレーターを彫ります。中心からの距離に応じて深さが減衰します。
func (h *Heightfield) Deform(center domain.Vec3, radius, depth float64) {
	if radius <= 0 || depth <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	minX := int(math.Floor((center.X - radius) / h.cell))
	maxX := int(math.Ceil((center.X + radius) / h.cell))
	minZ := int(math.Floor((center.Z - radius) / h.cell))
	maxZ := int(math.Ceil((center.Z + radius) / h.cell))

	for iz := minZ; iz <= maxZ; iz++ {
		if iz < 0 || iz >= h.depth {
			continue
		}
		for ix := minX; ix <= maxX; ix++ {
			if ix < 0 || ix >= h.width {
				continue
			}
			dx := float64(ix)*h.cell - center.X
			dz := float64(iz)*h.cell - center.Z
			dist := math.Sqrt(dx*dx + dz*dz)
			if dist >= radius {
				continue
			}
			// 中心で最大、縁で0の余弦減衰
			carve := depth * 0.5 * (1 + math.Cos(math.Pi*dist/radius))
			h.heights[iz*h.width+ix] -= carve
		}
	}
}

func (h *Heightfield) nodeAt(ix, iz int) float64 {
	if ix < 0 {
		ix = 0
	}
	if ix >= h.width {
		ix = h.width - 1
	}
	if iz < 0 {
		iz = 0
	}
	if iz >= h.depth {
		iz = h.depth - 1
	}
	return h.heights[iz*h.width+ix]
}

func catmullRom(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * ((2 * p1) +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}
