package components

/** @brief Marks a scene object as a point light. */
type PointLight struct {
	LightIntensity float32
}
