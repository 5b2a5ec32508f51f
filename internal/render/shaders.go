package render

const vertexShaderSource = `
precision mediump float;
attribute vec2 pos;
attribute vec2 texcoord;
varying vec2 v_texcoord;
uniform mat3 proj;
void main() {
	gl_Position = vec4(proj * vec3(pos, 1.0), 1.0);
	v_texcoord = texcoord;
}
`

const fragmentShaderSource = `
precision mediump float;
varying vec2 v_texcoord;
uniform sampler2D tex;
uniform float alpha;
void main() {
	gl_FragColor = texture2D(tex, v_texcoord) * alpha;
}
`
