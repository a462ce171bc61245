package ballistics

// Terrain は地形高さのオラクルです。
// 衝突サンプラーは任意のサブグリッド座標で呼び出し、法線推定は±1ユニットの
// 摂動に対する連続性を前提とするため、実装は滑らかな補間を提供する必要があります。
type Terrain interface {
	HeightAt(x, z float64) float64
}
