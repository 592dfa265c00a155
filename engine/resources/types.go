package resources

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Not a resource the engine loads. */
	ResourceTypeNone ResourceType = iota
	/** @brief Compiled SPIR-V shader stage. */
	ResourceTypeShader
	/** @brief Wavefront OBJ mesh. */
	ResourceTypeModel
	/** @brief Wavefront material library, read alongside a model. */
	ResourceTypeMaterialLibrary
)

func (t ResourceType) String() string {
	switch t {
	case ResourceTypeShader:
		return "shader"
	case ResourceTypeModel:
		return "model"
	case ResourceTypeMaterialLibrary:
		return "material library"
	default:
		return "none"
	}
}

/** @brief SPIR-V magic number, first word of every shader module. */
const SpirvMagic uint32 = 0x07230203

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The resource type. */
	Type ResourceType
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/**
	 * @brief The resource data. []uint32 SPIR-V words for shaders,
	 * *metadata.MeshBuilder for models.
	 */
	Data interface{}
}
