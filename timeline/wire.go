package timeline

import (
	"encoding/binary"
	"errors"
	"math"

	"scorched/domain"
)

// バイトオーダー: リトルエンディアン
var byteOrder = binary.LittleEndian

// サイズ定数
const (
	EventHeaderSize = 21 // kind u8 + projectileID [16]byte + time u32
	Vec3Size        = 12 // 3 * float32

	SpawnPayloadSize  = 56
	MovePayloadSize   = 12
	BouncePayloadSize = 66
	ImpactPayloadSize = 55

	TimelineCountSize = 2 // event count u16
)

var (
	ErrInvalidEventSize    = errors.New("invalid event size")
	ErrUnknownEventKind    = errors.New("unknown event kind")
	ErrInvalidTimelineSize = errors.New("invalid timeline size")
)

// payloadSize はKindごとの固定ペイロード長を返します。
func payloadSize(k Kind) (int, error) {
	switch k {
	case KindSpawn:
		return SpawnPayloadSize, nil
	case KindMove:
		return MovePayloadSize, nil
	case KindBounce:
		return BouncePayloadSize, nil
	case KindImpact:
		return ImpactPayloadSize, nil
	default:
		return 0, ErrUnknownEventKind
	}
}

// Encode はEventをバイト列にエンコードする
//
//	kind         u8       (1)
//	projectileID [16]byte (16)
//	time         u32      (4)  - ms、四捨五入
//	payload      可変     - Kindごとの固定レイアウト
func (e *Event) Encode() ([]byte, error) {
	size, err := payloadSize(e.Kind)
	if err != nil {
		return nil, err
	}
	data := make([]byte, EventHeaderSize+size)
	data[0] = byte(e.Kind)
	copy(data[1:17], e.Projectile[:])
	byteOrder.PutUint32(data[17:21], uint32(math.Round(e.Time)))

	p := data[EventHeaderSize:]
	switch e.Kind {
	case KindSpawn:
		copy(p[0:16], e.Player[:])
		putVec3(p[16:28], e.Position)
		putVec3(p[28:40], e.Direction)
		putFloat32(p[40:44], e.Power)
		p[44] = byte(e.Weapon)
		p[45] = e.Style
		putFloat32(p[46:50], e.Scale)
		p[50] = e.ExplosionType
		putFloat32(p[51:55], e.ExplosionSize)
		p[55] = encodeBool(e.IsFinal)
	case KindMove:
		putVec3(p[0:12], e.Position)
	case KindBounce:
		putVec3(p[0:12], e.Position)
		p[12] = e.BounceCount
		putVec3(p[13:25], e.Direction)
		putVec3(p[25:37], e.Outgoing)
		putVec3(p[37:49], e.Normal)
		p[49] = e.ExplosionType
		putFloat32(p[50:54], e.ExplosionSize)
		putFloat32(p[54:58], e.Damage)
		putFloat32(p[58:62], e.CraterSize)
		putFloat32(p[62:66], e.AoERadius)
	case KindImpact:
		putVec3(p[0:12], e.Position)
		putFloat32(p[12:16], e.Damage)
		putFloat32(p[16:20], e.AoERadius)
		putFloat32(p[20:24], e.CraterSize)
		p[24] = e.ExplosionType
		putFloat32(p[25:29], e.ExplosionSize)
		p[29] = e.BounceCount
		putVec3(p[30:42], e.Direction)
		putVec3(p[42:54], e.Normal)
		p[54] = encodeBool(e.IsFinal)
	}
	return data, nil
}

// ParseEvent はバイト列の先頭から1イベントをパースし、消費したバイト数を返す
func ParseEvent(data []byte) (*Event, int, error) {
	if len(data) < EventHeaderSize {
		return nil, 0, ErrInvalidEventSize
	}
	kind := Kind(data[0])
	size, err := payloadSize(kind)
	if err != nil {
		return nil, 0, err
	}
	if len(data) < EventHeaderSize+size {
		return nil, 0, ErrInvalidEventSize
	}

	ev := &Event{
		Kind: kind,
		Time: float64(byteOrder.Uint32(data[17:21])),
	}
	copy(ev.Projectile[:], data[1:17])

	p := data[EventHeaderSize : EventHeaderSize+size]
	switch kind {
	case KindSpawn:
		copy(ev.Player[:], p[0:16])
		ev.Position = parseVec3(p[16:28])
		ev.Direction = parseVec3(p[28:40])
		ev.Power = parseFloat32(p[40:44])
		ev.Weapon = WeaponCode(p[44])
		ev.Style = p[45]
		ev.Scale = parseFloat32(p[46:50])
		ev.ExplosionType = p[50]
		ev.ExplosionSize = parseFloat32(p[51:55])
		ev.IsFinal = p[55] != 0
	case KindMove:
		ev.Position = parseVec3(p[0:12])
	case KindBounce:
		ev.Position = parseVec3(p[0:12])
		ev.BounceCount = p[12]
		ev.Direction = parseVec3(p[13:25])
		ev.Outgoing = parseVec3(p[25:37])
		ev.Normal = parseVec3(p[37:49])
		ev.ExplosionType = p[49]
		ev.ExplosionSize = parseFloat32(p[50:54])
		ev.Damage = parseFloat32(p[54:58])
		ev.CraterSize = parseFloat32(p[58:62])
		ev.AoERadius = parseFloat32(p[62:66])
	case KindImpact:
		ev.Position = parseVec3(p[0:12])
		ev.Damage = parseFloat32(p[12:16])
		ev.AoERadius = parseFloat32(p[16:20])
		ev.CraterSize = parseFloat32(p[20:24])
		ev.ExplosionType = p[24]
		ev.ExplosionSize = parseFloat32(p[25:29])
		ev.BounceCount = p[29]
		ev.Direction = parseVec3(p[30:42])
		ev.Normal = parseVec3(p[42:54])
		ev.IsFinal = p[54] != 0
	}
	return ev, EventHeaderSize + size, nil
}

// EncodeEvents はタイムライン全体をエンコードする
//
//	count  u16 (2)
//	events 可変 - 各イベントを連結
func EncodeEvents(events []Event) ([]byte, error) {
	if len(events) > math.MaxUint16 {
		return nil, ErrInvalidTimelineSize
	}
	data := make([]byte, TimelineCountSize, TimelineCountSize+len(events)*(EventHeaderSize+SpawnPayloadSize))
	byteOrder.PutUint16(data[0:2], uint16(len(events)))
	for i := range events {
		encoded, err := events[i].Encode()
		if err != nil {
			return nil, err
		}
		data = append(data, encoded...)
	}
	return data, nil
}

// ParseEvents はバイト列からタイムライン全体をパースする
func ParseEvents(data []byte) ([]Event, error) {
	if len(data) < TimelineCountSize {
		return nil, ErrInvalidTimelineSize
	}
	count := int(byteOrder.Uint16(data[0:2]))
	events := make([]Event, 0, count)
	offset := TimelineCountSize
	for i := 0; i < count; i++ {
		ev, n, err := ParseEvent(data[offset:])
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
		offset += n
	}
	return events, nil
}

func putVec3(buf []byte, v domain.Vec3) {
	putFloat32(buf[0:4], v.X)
	putFloat32(buf[4:8], v.Y)
	putFloat32(buf[8:12], v.Z)
}

func parseVec3(buf []byte) domain.Vec3 {
	return domain.Vec3{
		X: parseFloat32(buf[0:4]),
		Y: parseFloat32(buf[4:8]),
		Z: parseFloat32(buf[8:12]),
	}
}

func putFloat32(buf []byte, f float64) {
	byteOrder.PutUint32(buf, math.Float32bits(float32(f)))
}

func parseFloat32(buf []byte) float64 {
	return float64(math.Float32frombits(byteOrder.Uint32(buf)))
}

func encodeBool(b bool) byte {
	if b {
		return 1
	}
	return 0
}
