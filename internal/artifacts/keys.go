package artifacts

import (
	"fmt"
	"path"
	"strings"
	"time"

	"cvinsight/internal/analysis"
)

// 对象键中的时间戳格式（UTC）。
const timestampLayout = "20060102_150405"

// CleanNamespace 去掉命名空间首尾的空白和斜杠。
func CleanNamespace(namespace string) string {
	return strings.Trim(strings.TrimSpace(namespace), "/")
}

// ObjectKey 生成 <namespace>/user_<id>/<kind>_<provider>_<YYYYMMDD_HHMMSS>.json。
func ObjectKey(namespace string, slot analysis.Slot, at time.Time) string {
	return fmt.Sprintf("%s%s_%s_%s.json",
		UserPrefix(namespace, slot.UserID), slot.Kind, slot.Provider, at.UTC().Format(timestampLayout))
}

// UserPrefix 返回某个用户全部对象的前缀，以斜杠结尾。
func UserPrefix(namespace string, userID uint) string {
	return fmt.Sprintf("%s/user_%d/", CleanNamespace(namespace), userID)
}

// SlotPrefix 返回某个槽位对象的前缀。
func SlotPrefix(namespace string, slot analysis.Slot) string {
	return fmt.Sprintf("%s%s_%s_", UserPrefix(namespace, slot.UserID), slot.Kind, slot.Provider)
}

// ParseObjectKey 从对象键还原槽位与时间戳。
func ParseObjectKey(key string) (analysis.Slot, time.Time, error) {
	var slot analysis.Slot

	dir, file := path.Split(key)
	userPart := path.Base(strings.TrimSuffix(dir, "/"))
	if _, err := fmt.Sscanf(userPart, "user_%d", &slot.UserID); err != nil {
		return slot, time.Time{}, fmt.Errorf("object key %q: missing user segment", key)
	}

	name, ok := strings.CutSuffix(file, ".json")
	if !ok || len(name) < len(timestampLayout)+2 {
		return slot, time.Time{}, fmt.Errorf("object key %q: unexpected file name", key)
	}
	stamp := name[len(name)-len(timestampLayout):]
	at, err := time.Parse(timestampLayout, stamp)
	if err != nil {
		return slot, time.Time{}, fmt.Errorf("object key %q: bad timestamp: %w", key, err)
	}

	rest := strings.TrimSuffix(name[:len(name)-len(timestampLayout)], "_")
	sep := strings.LastIndexByte(rest, '_')
	if sep <= 0 {
		return slot, time.Time{}, fmt.Errorf("object key %q: missing kind or provider", key)
	}
	slot.Kind = analysis.Kind(rest[:sep])
	slot.Provider = analysis.Provider(rest[sep+1:])
	if !slot.Kind.Valid() || !slot.Provider.Valid() {
		return slot, time.Time{}, fmt.Errorf("object key %q: unknown kind or provider", key)
	}
	return slot, at.UTC(), nil
}
